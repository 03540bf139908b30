// Package auditlog serializes the full decision list of a run, no-ops
// included, to durable CSV artifacts. The audit log is the authoritative
// record of what happened; it is written after the apply loop completes,
// even when individual mutations failed.
package auditlog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/logging"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

// timestampFormat stamps artifact file names.
const timestampFormat = "20060102_150405"

// decisionHeader is the fixed column set of the per-identity decision log.
var decisionHeader = []string{
	"email", "name", "person_id", "previous_org", "new_org",
	"org_action", "all_orgs", "status", "error", "mode",
}

// orgHeader is the fixed column set of the organization-creation log.
var orgHeader = []string{"name", "org_id", "status", "mode"}

// Files holds the paths of the written artifacts.
type Files struct {
	Decisions     string
	Organizations string
}

// Write serializes both audit artifacts into dir with timestamped names.
// mode is the run mode string and appears in every row.
func Write(dir string, now time.Time, mode string, decisions []*reconcile.Decision, orgs []*reconcile.OrgResult) (*Files, error) {
	stamp := now.Format(timestampFormat)
	files := &Files{
		Decisions:     filepath.Join(dir, "crmsync_decisions_"+stamp+".csv"),
		Organizations: filepath.Join(dir, "crmsync_orgs_"+stamp+".csv"),
	}

	if err := writeFile(files.Decisions, func(w io.Writer) error {
		return WriteDecisions(w, mode, decisions)
	}); err != nil {
		return nil, err
	}
	if err := writeFile(files.Organizations, func(w io.Writer) error {
		return WriteOrgResults(w, mode, orgs)
	}); err != nil {
		return nil, err
	}

	logging.Info().
		Str("decisions", files.Decisions).
		Str("organizations", files.Organizations).
		Int("rows", len(decisions)).
		Msg("Audit log written")
	return files, nil
}

// WriteDecisions writes the per-identity decision log, one row per
// decision.
func WriteDecisions(w io.Writer, mode string, decisions []*reconcile.Decision) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(decisionHeader); err != nil {
		return err
	}
	for _, d := range decisions {
		row := []string{
			d.Email,
			d.Name,
			id(d.ContactID),
			d.PreviousOrg,
			d.NewOrg,
			string(d.OrgAction),
			d.AllOrgs,
			string(d.Outcome),
			d.Err,
			mode,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOrgResults writes the organization-creation log.
func WriteOrgResults(w io.Writer, mode string, orgs []*reconcile.OrgResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orgHeader); err != nil {
		return err
	}
	for _, r := range orgs {
		row := []string{r.Name, id(r.ID), string(r.Outcome), mode}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// id renders a CRM id, leaving failed creations (id zero) blank.
func id(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO("close", path, err)
	}
	return nil
}
