// Package export parses the authoritative dataset export into normalized
// in-memory entities. Two schemas are supported: the membership export
// (one row per user+organization pair) and the pre-joined enrichment
// export (one row per user with a rendered organization list).
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/logging"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

// Membership export columns.
const (
	colEmail   = "Email"
	colName    = "Full Name"
	colUserID  = "User ID"
	colOrgName = "Organization Name"
	colOrgID   = "Organization ID"
)

// Enrichment export columns.
const (
	colEnrichEmail   = "email"
	colEnrichName    = "full_name"
	colEnrichUserID  = "user_id"
	colEnrichAllOrgs = "all_ligr_organizations"
)

// LoadMemberships parses a membership export. Rows sharing an identity
// key fold into one user: scalar fields take the last row's values, the
// organization list accumulates distinct org ids in first-seen order.
// Rows with an empty email are skipped. A missing or malformed numeric
// field is fatal for the whole run, since matching cannot proceed with a
// partial key.
func LoadMemberships(path string) (map[string]*reconcile.User, map[string]*reconcile.Org, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, errors.WrapParse("csv", path, err)
	}
	cols, err := columns(header, path, colEmail, colName, colUserID, colOrgName, colOrgID)
	if err != nil {
		return nil, nil, err
	}

	users := make(map[string]*reconcile.User)
	orgs := make(map[string]*reconcile.Org)
	line := 1
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, errors.WrapParse("csv", path, err)
		}
		rows++

		email := reconcile.NormalizeEmail(record[cols[colEmail]])
		if email == "" {
			continue
		}

		orgID, err := numeric(record[cols[colOrgID]])
		if err != nil {
			return nil, nil, &errors.ParseError{
				Format: "csv", File: path, Line: line,
				Message: "invalid " + colOrgID, Err: err,
			}
		}
		userID, err := numeric(record[cols[colUserID]])
		if err != nil {
			return nil, nil, &errors.ParseError{
				Format: "csv", File: path, Line: line,
				Message: "invalid " + colUserID, Err: err,
			}
		}

		orgName := strings.TrimSpace(record[cols[colOrgName]])
		orgKey := reconcile.FoldName(orgName)
		if _, ok := orgs[orgKey]; !ok {
			orgs[orgKey] = &reconcile.Org{Name: orgName, ID: orgID}
		}

		user, ok := users[email]
		if !ok {
			user = &reconcile.User{Email: email}
			users[email] = user
		}
		user.Name = strings.TrimSpace(record[cols[colName]])
		user.UserID = strconv.Itoa(userID)
		if !hasOrg(user.Orgs, orgID) {
			user.Orgs = append(user.Orgs, reconcile.OrgRef{Name: orgName, ID: orgID})
		}
	}

	multi := 0
	for _, u := range users {
		if len(u.Orgs) > 1 {
			multi++
		}
	}
	logging.Info().
		Int("rows", rows).
		Int("users", len(users)).
		Int("organizations", len(orgs)).
		Int("multi_org_users", multi).
		Msg("Authoritative export loaded")

	return users, orgs, nil
}

// LoadEnrichment parses a pre-joined enrichment export: one row per user
// with the organization list already rendered. Duplicate emails keep the
// last row. Rows with an empty email are skipped.
func LoadEnrichment(path string) (map[string]*reconcile.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errors.WrapParse("csv", path, err)
	}
	cols, err := columns(header, path, colEnrichEmail, colEnrichName, colEnrichUserID, colEnrichAllOrgs)
	if err != nil {
		return nil, err
	}

	users := make(map[string]*reconcile.User)
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapParse("csv", path, err)
		}
		rows++

		email := reconcile.NormalizeEmail(record[cols[colEnrichEmail]])
		if email == "" {
			continue
		}
		users[email] = &reconcile.User{
			Email:     email,
			Name:      strings.TrimSpace(record[cols[colEnrichName]]),
			UserID:    strings.TrimSpace(record[cols[colEnrichUserID]]),
			Prejoined: strings.TrimSpace(record[cols[colEnrichAllOrgs]]),
		}
	}

	logging.Info().Int("rows", rows).Int("users", len(users)).Msg("Enrichment export loaded")
	return users, nil
}

// columns maps required column names to indices, trimming header cells.
func columns(header []string, path string, required ...string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	cols := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := index[name]
		if !ok {
			return nil, &errors.ParseError{
				Format: "csv", File: path,
				Message: "missing required column " + strconv.Quote(name),
			}
		}
		cols[name] = i
	}
	return cols, nil
}

// numeric parses a required integer cell.
func numeric(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func hasOrg(orgs []reconcile.OrgRef, id int) bool {
	for _, o := range orgs {
		if o.ID == id {
			return true
		}
	}
	return false
}
