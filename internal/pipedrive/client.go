// Package pipedrive implements the CRM operations the sync pipeline
// needs: paginated contact and organization listing, field metadata
// lookup and creation, and contact/organization writes. Each operation
// has its own typed request/response pair; loosely-typed payloads never
// cross this boundary.
package pipedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ligrlabs/crmsync/internal/transport"
	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/logging"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
	"github.com/ligrlabs/crmsync/pkg/schema"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.pipedrive.com/v1"

// pageLimit is the page size for paginated listings.
const pageLimit = 500

// Client wraps the transport with typed CRM operations.
type Client struct {
	t *transport.Client
}

// NewClient creates a CRM client over the given transport.
func NewClient(t *transport.Client) *Client {
	return &Client{t: t}
}

// CurrentUser fetches the authenticated user. Used as a connection
// preflight before any other work.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp userResponse
	if err := c.t.Get(ctx, "users/me", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &errors.APIError{Endpoint: "users/me", Message: resp.Error}
	}
	return &resp.Data, nil
}

// ListOrganizations fetches every organization, paging until the service
// reports no further pages. A page reporting success=false aborts the
// fetch; there is no partial-snapshot mode.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var all []Organization
	start := 0
	for {
		var resp orgListResponse
		if err := c.t.Get(ctx, "organizations", pageQuery(start), &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, &errors.APIError{
				Endpoint: "organizations",
				Message:  resp.Error,
				Err:      errors.ErrFetchFailed,
			}
		}
		if len(resp.Data) == 0 {
			break
		}
		all = append(all, resp.Data...)
		logging.Debug().Int("fetched", len(all)).Msg("Fetching organizations")

		next, more := nextStart(resp.AdditionalData.Pagination, start)
		if !more {
			break
		}
		start = next
	}
	return all, nil
}

// listPersons fetches every contact as raw records so managed custom
// field values can be extracted by key.
func (c *Client) listPersons(ctx context.Context) ([]json.RawMessage, error) {
	var all []json.RawMessage
	start := 0
	for {
		var resp personListResponse
		if err := c.t.Get(ctx, "persons", pageQuery(start), &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, &errors.APIError{
				Endpoint: "persons",
				Message:  resp.Error,
				Err:      errors.ErrFetchFailed,
			}
		}
		if len(resp.Data) == 0 {
			break
		}
		all = append(all, resp.Data...)
		logging.Debug().Int("fetched", len(all)).Msg("Fetching persons")

		next, more := nextStart(resp.AdditionalData.Pagination, start)
		if !more {
			break
		}
		start = next
	}
	return all, nil
}

// ListPersonFields returns every contact field definition.
func (c *Client) ListPersonFields(ctx context.Context) ([]schema.Field, error) {
	var resp fieldListResponse
	if err := c.t.Get(ctx, "personFields", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &errors.APIError{Endpoint: "personFields", Message: resp.Error}
	}

	fields := make([]schema.Field, 0, len(resp.Data))
	for _, f := range resp.Data {
		fields = append(fields, convertField(f))
	}
	return fields, nil
}

// CreatePersonField creates a contact field definition, with option
// labels for enumerated kinds.
func (c *Client) CreatePersonField(ctx context.Context, name string, kind schema.Kind, options []string) (*schema.Field, error) {
	req := fieldCreateRequest{Name: name, FieldType: string(kind)}
	for _, label := range options {
		req.Options = append(req.Options, fieldOptionRequest{Label: label})
	}

	var resp fieldCreateResponse
	if err := c.t.Post(ctx, "personFields", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &errors.APIError{Endpoint: "personFields", Message: resp.Error}
	}
	field := convertField(resp.Data)
	return &field, nil
}

// CreateOrganization creates an organization by name.
func (c *Client) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	var resp orgCreateResponse
	if err := c.t.Post(ctx, "organizations", orgCreateRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &errors.APIError{Endpoint: "organizations", Message: resp.Error}
	}
	return &resp.Data, nil
}

// CreatePerson creates a contact and returns its assigned id. The outcome
// is classified strictly from the envelope's success indicator.
func (c *Client) CreatePerson(ctx context.Context, w *PersonWrite) (int, error) {
	var resp personCreateResponse
	if err := c.t.Post(ctx, "persons", w, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &errors.APIError{Endpoint: "persons", Message: resp.Error}
	}
	return resp.Data.ID, nil
}

// UpdatePerson updates a contact by id.
func (c *Client) UpdatePerson(ctx context.Context, id int, w *PersonWrite) error {
	endpoint := fmt.Sprintf("persons/%d", id)
	var resp personUpdateResponse
	if err := c.t.Put(ctx, endpoint, w, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &errors.APIError{Endpoint: endpoint, Message: resp.Error}
	}
	return nil
}

// Snapshot fetches every organization and contact and builds the lookup
// indices the engine reconciles against. fieldKeys names the managed CRM
// field keys whose current values must be captured for change detection.
func (c *Client) Snapshot(ctx context.Context, fieldKeys []string) (*reconcile.Snapshot, error) {
	snap := reconcile.NewSnapshot()

	orgs, err := c.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		snap.AddOrg(&reconcile.RemoteOrg{ID: org.ID, Name: org.Name})
	}

	raws, err := c.listPersons(ctx)
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		person, err := decodePerson(raw, fieldKeys)
		if err != nil {
			return nil, errors.WrapParse("json", "persons", err)
		}
		snap.AddContact(convertPerson(person))
	}

	logging.Info().
		Int("organizations", len(orgs)).
		Int("contacts", len(snap.Contacts)).
		Int("contacts_with_email", len(snap.ContactByEmail)).
		Msg("Remote snapshot built")
	return snap, nil
}

// decodePerson decodes a raw contact record, extracting the managed
// custom-field values by key.
func decodePerson(raw json.RawMessage, fieldKeys []string) (*Person, error) {
	var p Person
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	if len(fieldKeys) > 0 {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		p.Custom = make(map[string]string, len(fieldKeys))
		for _, key := range fieldKeys {
			if v, ok := m[key]; ok {
				p.Custom[key] = stringify(v)
			}
		}
	}
	return &p, nil
}

// convertPerson normalizes a wire contact into the engine's
// representation. The first email with a non-empty normalized value is
// the contact's canonical identity key.
func convertPerson(p *Person) *reconcile.RemoteContact {
	contact := &reconcile.RemoteContact{
		ID:     p.ID,
		Name:   p.Name,
		Fields: p.Custom,
	}
	for _, email := range p.Emails {
		if key := reconcile.NormalizeEmail(email.Value); key != "" {
			contact.Email = key
			break
		}
	}
	if p.OrgID.Valid {
		id := p.OrgID.ID
		contact.OrgID = &id
	}
	return contact
}

// convertField normalizes a wire field definition.
func convertField(f fieldResponse) schema.Field {
	field := schema.Field{
		Key:  f.Key,
		Name: f.Name,
		Kind: schema.Kind(f.FieldType),
	}
	for _, opt := range f.Options {
		field.Options = append(field.Options, schema.Option{ID: opt.ID, Label: opt.Label})
	}
	return field
}

// pageQuery builds the offset pagination parameters.
func pageQuery(start int) url.Values {
	return url.Values{
		"start": {strconv.Itoa(start)},
		"limit": {strconv.Itoa(pageLimit)},
	}
}

// nextStart resolves the next page offset, falling back to start+limit
// when the service omits next_start.
func nextStart(p pagination, start int) (int, bool) {
	if !p.MoreItemsInCollection {
		return 0, false
	}
	if p.NextStart != nil {
		return *p.NextStart, true
	}
	return start + pageLimit, true
}
