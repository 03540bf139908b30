package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

func TestRenderOrgList(t *testing.T) {
	tests := []struct {
		name string
		orgs []reconcile.OrgRef
		want string
	}{
		{
			name: "empty",
			orgs: nil,
			want: "",
		},
		{
			name: "single",
			orgs: []reconcile.OrgRef{{Name: "Acme", ID: 1}},
			want: "Acme (1)",
		},
		{
			name: "duplicate id suppressed, order preserved",
			orgs: []reconcile.OrgRef{{Name: "Acme", ID: 1}, {Name: "Acme", ID: 1}, {Name: "Beta", ID: 2}},
			want: "Acme (1), Beta (2)",
		},
		{
			name: "order preserved",
			orgs: []reconcile.OrgRef{{Name: "Zeta", ID: 9}, {Name: "Acme", ID: 1}},
			want: "Zeta (9), Acme (1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcile.RenderOrgList(tt.orgs))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", reconcile.NormalizeEmail("  A@X.Com "))
	assert.Equal(t, "", reconcile.NormalizeEmail("   "))
}

func TestEnrichmentValuePrefersPrejoined(t *testing.T) {
	u := &reconcile.User{
		Orgs:      []reconcile.OrgRef{{Name: "Acme", ID: 1}},
		Prejoined: "Acme (1), Beta (2)",
	}
	assert.Equal(t, "Acme (1), Beta (2)", u.EnrichmentValue())

	u.Prejoined = ""
	assert.Equal(t, "Acme (1)", u.EnrichmentValue())
}

func TestSnapshotIndices(t *testing.T) {
	snap := reconcile.NewSnapshot()
	snap.AddOrg(&reconcile.RemoteOrg{ID: 1, Name: "Acme Corp"})
	snap.AddContact(&reconcile.RemoteContact{ID: 5, Email: "a@x.com"})
	snap.AddContact(&reconcile.RemoteContact{ID: 6})

	assert.Equal(t, 1, snap.OrgByName["acme corp"].ID)
	assert.Equal(t, "Acme Corp", snap.OrgByID[1].Name)
	assert.Equal(t, 5, snap.ContactByEmail["a@x.com"].ID)
	assert.Len(t, snap.Contacts, 2, "contacts without email stay in the ordered list")
}
