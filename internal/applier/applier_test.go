package applier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligrlabs/crmsync/internal/applier"
	"github.com/ligrlabs/crmsync/internal/pipedrive"
	"github.com/ligrlabs/crmsync/internal/transport"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

func TestDryRunSynthesizesPlaceholderIDs(t *testing.T) {
	// A nil client proves dry run never reaches the network.
	a := applier.New(nil, &reconcile.Run{DryRun: true})
	ctx := context.Background()

	org, err := a.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, -1, org.ID)
	assert.Equal(t, "Acme", org.Name)

	id, err := a.CreateContact(ctx, &reconcile.ContactWrite{Name: "Alice", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, -2, id, "placeholder ids stay distinct within a run")

	require.NoError(t, a.UpdateContact(ctx, 7, &reconcile.ContactWrite{Name: "Alice"}))
}

func TestLiveModeWritesThrough(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/organizations":
			w.Write([]byte(`{"success":true,"data":{"id":10,"name":"Acme"}}`))
		case "/persons":
			w.Write([]byte(`{"success":true,"data":{"id":20}}`))
		default:
			w.Write([]byte(`{"success":true,"data":{"id":7}}`))
		}
	}))
	defer server.Close()

	tr, err := transport.New(server.URL, "secret", transport.WithDelay(0))
	require.NoError(t, err)
	a := applier.New(pipedrive.NewClient(tr), &reconcile.Run{})
	ctx := context.Background()

	org, err := a.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 10, org.ID)

	id, err := a.CreateContact(ctx, &reconcile.ContactWrite{Name: "Alice", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 20, id)

	require.NoError(t, a.UpdateContact(ctx, 7, &reconcile.ContactWrite{Name: "Alice"}))

	assert.Equal(t, []string{
		"POST /organizations",
		"POST /persons",
		"PUT /persons/7",
	}, paths)
}
