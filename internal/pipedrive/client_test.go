package pipedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligrlabs/crmsync/internal/transport"
	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/schema"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr, err := transport.New(server.URL, "secret", transport.WithDelay(0))
	require.NoError(t, err)
	return NewClient(tr)
}

func TestListOrganizationsPaginates(t *testing.T) {
	var starts []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/organizations", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("api_token"))
		start := r.URL.Query().Get("start")
		starts = append(starts, start)

		if start == "0" {
			fmt.Fprint(w, `{"success":true,"data":[{"id":1,"name":"Acme"},{"id":2,"name":"Beta"}],
				"additional_data":{"pagination":{"more_items_in_collection":true,"next_start":2}}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[{"id":3,"name":"Gamma"}],
			"additional_data":{"pagination":{"more_items_in_collection":false}}}`)
	})

	orgs, err := newTestClient(t, handler).ListOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 3)
	assert.Equal(t, []string{"0", "2"}, starts)
	assert.Equal(t, "Gamma", orgs[2].Name)
}

func TestListOrganizationsEmpty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	})

	orgs, err := newTestClient(t, handler).ListOrganizations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestListOrganizationsFailureAborts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"error":"scope revoked"}`)
	})

	_, err := newTestClient(t, handler).ListOrganizations(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFetchFailed(err))
	assert.Contains(t, err.Error(), "scope revoked")
}

func TestSnapshotNormalizesContacts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations":
			fmt.Fprint(w, `{"success":true,"data":[{"id":10,"name":"Acme"}]}`)
		case "/persons":
			// Email as object list, bare string list, and missing; org_id
			// as bare id, expanded object, and null.
			fmt.Fprint(w, `{"success":true,"data":[
				{"id":1,"name":"Alice","email":[{"value":"","primary":false},{"value":" A@X.com ","primary":true}],
				 "org_id":10,"k_status":"in db","k_orgs":"Acme (1)"},
				{"id":2,"name":"Bob","email":["b@x.com"],"org_id":{"value":10,"name":"Acme"}},
				{"id":3,"name":"NoMail","org_id":null,"k_status":null}
			]}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	snap, err := newTestClient(t, handler).Snapshot(context.Background(), []string{"k_status", "k_orgs"})
	require.NoError(t, err)

	require.Len(t, snap.Contacts, 3)
	require.Len(t, snap.ContactByEmail, 2)

	alice := snap.ContactByEmail["a@x.com"]
	require.NotNil(t, alice, "first non-empty email, normalized, is the identity key")
	require.NotNil(t, alice.OrgID)
	assert.Equal(t, 10, *alice.OrgID)
	assert.Equal(t, "in db", alice.FieldValue("k_status"))
	assert.Equal(t, "Acme (1)", alice.FieldValue("k_orgs"))

	bob := snap.ContactByEmail["b@x.com"]
	require.NotNil(t, bob)
	require.NotNil(t, bob.OrgID)
	assert.Equal(t, 10, *bob.OrgID, "expanded org_id object decodes to its value")

	noMail := snap.Contacts[2]
	assert.Empty(t, noMail.Email)
	assert.Nil(t, noMail.OrgID)
	assert.Equal(t, "", noMail.FieldValue("k_status"), "null field values read as empty")
}

func TestCreatePersonField(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/personFields", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "DB Status", req["name"])
		assert.Equal(t, "enum", req["field_type"])

		fmt.Fprint(w, `{"success":true,"data":{"key":"abc123","name":"DB Status","field_type":"enum",
			"options":[{"id":55,"label":"IN DATABASE"}]}}`)
	})

	field, err := newTestClient(t, handler).CreatePersonField(
		context.Background(), "DB Status", schema.KindEnum, []string{"IN DATABASE"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", field.Key)
	require.Len(t, field.Options, 1)
	assert.Equal(t, 55, field.Options[0].ID)
}

func TestUpdatePersonPayload(t *testing.T) {
	orgID := 10
	label := 55
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/persons/7", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, float64(10), payload["org_id"])
		assert.Equal(t, float64(55), payload["label"])
		assert.Equal(t, "Acme (1)", payload["k_orgs"])
		assert.NotContains(t, payload, "name", "empty fields are omitted")

		fmt.Fprint(w, `{"success":true,"data":{"id":7}}`)
	})

	err := newTestClient(t, handler).UpdatePerson(context.Background(), 7, &PersonWrite{
		OrgID:  &orgID,
		Label:  &label,
		Fields: map[string]string{"k_orgs": "Acme (1)"},
	})
	require.NoError(t, err)
}

func TestUpdatePersonEnvelopeFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// HTTP 200 with success=false must still classify as failure.
		fmt.Fprint(w, `{"success":false,"error":"person deleted"}`)
	})

	err := newTestClient(t, handler).UpdatePerson(context.Background(), 7, &PersonWrite{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "person deleted")
}

func TestCreatePerson(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "a@x.com", payload["email"])

		fmt.Fprint(w, `{"success":true,"data":{"id":99}}`)
	})

	id, err := newTestClient(t, handler).CreatePerson(context.Background(), &PersonWrite{
		Name:  "Alice",
		Email: "a@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 99, id)
}

func TestCurrentUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me", r.URL.Path)
		fmt.Fprint(w, `{"success":true,"data":{"id":1,"name":"Admin","email":"admin@x.com"}}`)
	})

	user, err := newTestClient(t, handler).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Admin", user.Name)
}
