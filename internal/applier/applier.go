// Package applier executes the mutations the reconciliation engine
// decides on, in live or dry-run mode. Dry-run performs no network
// mutation but synthesizes placeholder ids so downstream decisions in the
// same simulated run still resolve references consistently.
package applier

import (
	"context"

	"github.com/ligrlabs/crmsync/internal/pipedrive"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
)

// Applier implements reconcile.Writer against the CRM client.
type Applier struct {
	client *pipedrive.Client
	run    *reconcile.Run

	// placeholders counts down so synthesized ids are negative and cannot
	// collide with real CRM ids.
	placeholders int
}

// New creates an applier for the given run. In dry-run mode the client is
// never called and may be nil.
func New(client *pipedrive.Client, run *reconcile.Run) *Applier {
	return &Applier{client: client, run: run}
}

// CreateOrganization creates an organization, or synthesizes one in
// dry-run mode.
func (a *Applier) CreateOrganization(ctx context.Context, name string) (*reconcile.RemoteOrg, error) {
	if a.run.DryRun {
		return &reconcile.RemoteOrg{ID: a.placeholder(), Name: name}, nil
	}

	org, err := a.client.CreateOrganization(ctx, name)
	if err != nil {
		return nil, err
	}
	return &reconcile.RemoteOrg{ID: org.ID, Name: org.Name}, nil
}

// CreateContact creates a contact and returns its assigned id, or a
// placeholder id in dry-run mode.
func (a *Applier) CreateContact(ctx context.Context, w *reconcile.ContactWrite) (int, error) {
	if a.run.DryRun {
		return a.placeholder(), nil
	}
	return a.client.CreatePerson(ctx, toPersonWrite(w))
}

// UpdateContact updates a contact by id. A no-op in dry-run mode.
func (a *Applier) UpdateContact(ctx context.Context, id int, w *reconcile.ContactWrite) error {
	if a.run.DryRun {
		return nil
	}
	return a.client.UpdatePerson(ctx, id, toPersonWrite(w))
}

func (a *Applier) placeholder() int {
	a.placeholders--
	return a.placeholders
}

// toPersonWrite converts the engine's structured write into the CRM
// payload type.
func toPersonWrite(w *reconcile.ContactWrite) *pipedrive.PersonWrite {
	return &pipedrive.PersonWrite{
		Name:   w.Name,
		Email:  w.Email,
		OrgID:  w.OrgID,
		Label:  w.Label,
		Fields: w.Fields,
	}
}
