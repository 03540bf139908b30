package auditlog_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligrlabs/crmsync/pkg/auditlog"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

func TestWriteDecisions(t *testing.T) {
	decisions := []*reconcile.Decision{
		{
			Email:     "alice@x.com",
			Name:      "Alice Example",
			ContactID: 101,
			NewOrg:    "Acme",
			OrgAction: reconcile.OrgActionUpdated,
			AllOrgs:   "Acme (1), Beta (2)",
			StatusTag: reconcile.StatusInDatabase,
			Outcome:   reconcile.OutcomeSuccess,
		},
		{
			Email:     "bob@x.com",
			Name:      "Bob",
			ContactID: 102,
			PreviousOrg: "Acme",
			NewOrg:    "Acme",
			OrgAction: reconcile.OrgActionKept,
			AllOrgs:   "Acme (1)",
			StatusTag: reconcile.StatusInDatabase,
			Outcome:   reconcile.OutcomeNoop,
		},
		{
			Email:     "carol@x.com",
			Name:      "Carol",
			OrgAction: reconcile.OrgActionCreatePending,
			AllOrgs:   "Acme (1)",
			Outcome:   reconcile.OutcomeFailed,
			Err:       "request failed",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, auditlog.WriteDecisions(&buf, "live", decisions))

	g := goldie.New(t)
	g.Assert(t, "decisions", buf.Bytes())
}

func TestWriteOrgResults(t *testing.T) {
	orgs := []*reconcile.OrgResult{
		{Name: "Acme", ID: 10, Outcome: reconcile.OutcomeSuccess},
		{Name: "Beta", ID: -1, Outcome: reconcile.OutcomeDryRun},
		{Name: "Gamma", Outcome: reconcile.OutcomeFailed, Err: "name rejected"},
	}

	var buf bytes.Buffer
	require.NoError(t, auditlog.WriteOrgResults(&buf, "dry_run", orgs))

	g := goldie.New(t)
	g.Assert(t, "orgs", buf.Bytes())
}

func TestWriteTimestampedArtifacts(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 29, 13, 45, 5, 0, time.UTC)

	files, err := auditlog.Write(dir, now, "live", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crmsync_decisions_20260829_134505.csv"), files.Decisions)
	assert.Equal(t, filepath.Join(dir, "crmsync_orgs_20260829_134505.csv"), files.Organizations)

	for _, path := range []string{files.Decisions, files.Organizations} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data, "empty runs still get a header row")
	}
}

func TestWriteFailsOnMissingDir(t *testing.T) {
	_, err := auditlog.Write(filepath.Join(t.TempDir(), "missing"), time.Now(), "live", nil, nil)
	require.Error(t, err)
}
