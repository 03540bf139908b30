package reconcile

import (
	"context"
	"sort"
	"strconv"

	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/logging"
)

// Writer executes the mutations the engine decides on. Implementations are
// expected to be either a live CRM-backed applier or a dry-run synthesizer;
// the engine itself never touches the network.
type Writer interface {
	// CreateOrganization creates an organization and returns its record.
	CreateOrganization(ctx context.Context, name string) (*RemoteOrg, error)

	// CreateContact creates a contact and returns its assigned id.
	CreateContact(ctx context.Context, w *ContactWrite) (int, error)

	// UpdateContact updates a contact by id.
	UpdateContact(ctx context.Context, id int, w *ContactWrite) error
}

// Engine reconciles the authoritative user/org sets against a remote
// snapshot. Organizations must complete before Persons; the ordering is a
// required part of the contract, not an incidental effect.
type Engine struct {
	run    *Run
	users  map[string]*User // keyed by identity key
	orgs   map[string]*Org  // keyed by folded name
	snap   *Snapshot
	writer Writer

	orgsResolved bool
	decisions    []*Decision
	orgResults   []*OrgResult
}

// New creates an Engine over the given authoritative sets and snapshot.
func New(run *Run, users map[string]*User, orgs map[string]*Org, snap *Snapshot, w Writer) *Engine {
	return &Engine{
		run:    run,
		users:  users,
		orgs:   orgs,
		snap:   snap,
		writer: w,
	}
}

// Decisions returns the per-identity decision list, no-ops included.
func (e *Engine) Decisions() []*Decision { return e.decisions }

// OrgResults returns the organization pre-creation results.
func (e *Engine) OrgResults() []*OrgResult { return e.orgResults }

// Organizations runs the pre-creation pass: every authoritative
// organization absent from the remote org-by-name index is created and the
// index is updated in place, so later person decisions resolve it.
// Individual creation failures are recorded and do not stop the batch.
func (e *Engine) Organizations(ctx context.Context) error {
	keys := make([]string, 0, len(e.orgs))
	for k := range e.orgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		org := e.orgs[k]
		if _, ok := e.snap.OrgByName[k]; ok {
			continue
		}

		created, err := e.writer.CreateOrganization(ctx, org.Name)
		if err != nil {
			e.orgResults = append(e.orgResults, &OrgResult{
				Name:    org.Name,
				Outcome: OutcomeFailed,
				Err:     err.Error(),
			})
			logging.Warn().Err(err).Str("org", org.Name).Msg("Organization creation failed")
			continue
		}

		e.snap.AddOrg(created)
		e.run.OrgsCreated++
		e.orgResults = append(e.orgResults, &OrgResult{
			Name:    created.Name,
			ID:      created.ID,
			Outcome: e.outcome(),
		})
	}

	e.orgsResolved = true
	logging.Info().
		Int("created", e.run.OrgsCreated).
		Int("failed", len(e.orgResults)-e.run.OrgsCreated).
		Msg("Organization pass complete")
	return nil
}

// Persons runs the person pass: one decision per authoritative identity
// (create or update path), then one decision per CRM-only contact (stray
// tagging). Per-record write failures are recorded and non-fatal.
func (e *Engine) Persons(ctx context.Context) error {
	if !e.orgsResolved {
		return errors.ErrOrderViolation
	}

	emails := make([]string, 0, len(e.users))
	for k := range e.users {
		emails = append(emails, k)
	}
	sort.Strings(emails)

	for _, email := range emails {
		user := e.users[email]
		if contact, ok := e.snap.ContactByEmail[email]; ok {
			e.decideUpdate(ctx, user, contact)
		} else {
			e.decideCreate(ctx, user)
		}
	}

	e.strays(ctx)

	logging.Info().
		Int("created", e.run.Created).
		Int("updated", e.run.Updated).
		Int("no_op", e.run.Skipped).
		Int("tagged", e.run.Tagged).
		Int("failed", e.run.Failed).
		Msg("Person pass complete")
	return nil
}

// decideUpdate computes the target state for a matched contact and issues
// a write only if at least one managed value differs from the snapshot.
func (e *Engine) decideUpdate(ctx context.Context, user *User, contact *RemoteContact) {
	d := &Decision{
		Email:     user.Email,
		Name:      contact.Name,
		ContactID: contact.ID,
		AllOrgs:   user.EnrichmentValue(),
		StatusTag: StatusInDatabase,
		Outcome:   OutcomePending,
	}

	currentID := contact.OrgID
	currentName := e.orgName(currentID)
	d.PreviousOrg = currentName

	newID := currentID
	newName := currentName
	if len(user.Orgs) > 0 {
		if currentName != "" && e.currentMatches(currentName, user.Orgs) {
			// Preserve a manually curated CRM link while it remains valid.
			d.OrgAction = OrgActionKept
		} else {
			first := user.Orgs[0]
			if org, ok := e.snap.OrgByName[FoldName(first.Name)]; ok {
				newID = &org.ID
				newName = org.Name
				d.OrgAction = OrgActionUpdated
			} else {
				// Should not happen after the pre-creation pass; logged, not fatal.
				d.OrgAction = OrgActionNotFound
				logging.Warn().Str("email", user.Email).Str("org", first.Name).
					Msg("Target organization not found; link left untouched")
			}
		}
	}
	d.NewOrg = newName

	w := &ContactWrite{Fields: make(map[string]string)}
	changed := false
	if newID != nil && (currentID == nil || *newID != *currentID) {
		w.OrgID = newID
		changed = true
	}
	changed = e.fieldDelta(contact, user, d, w) || changed

	if !changed {
		d.Outcome = OutcomeNoop
		e.run.Skipped++
		e.decisions = append(e.decisions, d)
		return
	}

	if err := e.writer.UpdateContact(ctx, contact.ID, w); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = err.Error()
		e.run.Failed++
	} else {
		d.Outcome = e.outcome()
		e.run.Updated++
	}
	e.decisions = append(e.decisions, d)
}

// decideCreate emits a create for an authoritative identity absent from
// the CRM. The organization link at creation time is governed by the
// LinkOnCreate configuration.
func (e *Engine) decideCreate(ctx context.Context, user *User) {
	d := &Decision{
		Email:     user.Email,
		Name:      user.Name,
		AllOrgs:   user.EnrichmentValue(),
		StatusTag: StatusInDatabase,
		OrgAction: OrgActionCreatePending,
		Outcome:   OutcomePending,
	}

	w := &ContactWrite{
		Name:   user.Name,
		Email:  user.Email,
		Fields: make(map[string]string),
	}
	e.targetFields(user, d, w)

	if e.run.LinkOnCreate && len(user.Orgs) > 0 {
		first := user.Orgs[0]
		if org, ok := e.snap.OrgByName[FoldName(first.Name)]; ok {
			w.OrgID = &org.ID
			d.NewOrg = org.Name
			d.OrgAction = OrgActionLinked
		} else {
			d.OrgAction = OrgActionNotFound
		}
	}

	id, err := e.writer.CreateContact(ctx, w)
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = err.Error()
		e.run.Failed++
	} else {
		d.ContactID = id
		d.Outcome = e.outcome()
		e.run.Created++
	}
	e.decisions = append(e.decisions, d)
}

// strays tags CRM contacts with no authoritative match. In tag-all mode
// every fetched contact is visited and contacts without a resolvable email
// are tagged unknown; otherwise only the email index misses are visited.
func (e *Engine) strays(ctx context.Context) {
	if e.run.Keys.Status == "" {
		return
	}

	if e.run.TagAll {
		for _, contact := range e.snap.Contacts {
			if contact.Email == "" {
				e.tag(ctx, contact, StatusUnknown)
				continue
			}
			if _, ok := e.users[contact.Email]; !ok {
				e.tag(ctx, contact, StatusNotInDatabase)
			}
		}
		return
	}

	emails := make([]string, 0, len(e.snap.ContactByEmail))
	for email := range e.snap.ContactByEmail {
		if _, ok := e.users[email]; !ok {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)
	for _, email := range emails {
		e.tag(ctx, e.snap.ContactByEmail[email], StatusNotInDatabase)
	}
}

// tag writes a status tag to a CRM-only contact, skipping when the field
// already holds it.
func (e *Engine) tag(ctx context.Context, contact *RemoteContact, tag string) {
	d := &Decision{
		Email:       contact.Email,
		Name:        contact.Name,
		ContactID:   contact.ID,
		PreviousOrg: e.orgName(contact.OrgID),
		StatusTag:   tag,
		Outcome:     OutcomePending,
	}

	statusKey := e.run.Keys.Status
	if contact.FieldValue(statusKey) == tag {
		d.Outcome = OutcomeNoop
		e.run.Skipped++
		e.decisions = append(e.decisions, d)
		return
	}

	w := &ContactWrite{Fields: map[string]string{statusKey: tag}}
	if err := e.writer.UpdateContact(ctx, contact.ID, w); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = err.Error()
		e.run.Failed++
	} else {
		d.Outcome = e.outcome()
		e.run.Tagged++
	}
	e.decisions = append(e.decisions, d)
}

// fieldDelta adds managed field values that differ from the contact's
// current values to the write, reporting whether anything changed.
func (e *Engine) fieldDelta(contact *RemoteContact, user *User, d *Decision, w *ContactWrite) bool {
	keys := e.run.Keys
	changed := false
	if keys.AllOrgs != "" && contact.FieldValue(keys.AllOrgs) != d.AllOrgs {
		w.Fields[keys.AllOrgs] = d.AllOrgs
		changed = true
	}
	if keys.Status != "" && contact.FieldValue(keys.Status) != d.StatusTag {
		w.Fields[keys.Status] = d.StatusTag
		changed = true
	}
	if keys.UserID != "" && user.UserID != "" && contact.FieldValue(keys.UserID) != user.UserID {
		w.Fields[keys.UserID] = user.UserID
		changed = true
	}
	if keys.Label != "" && keys.InDatabaseOption != 0 {
		want := strconv.Itoa(keys.InDatabaseOption)
		if contact.FieldValue(keys.Label) != want {
			option := keys.InDatabaseOption
			w.Label = &option
			changed = true
		}
	}
	return changed
}

// targetFields fills a create write with every managed field value.
func (e *Engine) targetFields(user *User, d *Decision, w *ContactWrite) {
	keys := e.run.Keys
	if keys.AllOrgs != "" {
		w.Fields[keys.AllOrgs] = d.AllOrgs
	}
	if keys.Status != "" {
		w.Fields[keys.Status] = d.StatusTag
	}
	if keys.UserID != "" && user.UserID != "" {
		w.Fields[keys.UserID] = user.UserID
	}
	if keys.Label != "" && keys.InDatabaseOption != 0 {
		option := keys.InDatabaseOption
		w.Label = &option
	}
}

// currentMatches reports whether the contact's current org name matches
// any authoritative candidate, case-insensitively.
func (e *Engine) currentMatches(current string, candidates []OrgRef) bool {
	folded := FoldName(current)
	for _, c := range candidates {
		if FoldName(c.Name) == folded {
			return true
		}
	}
	return false
}

// orgName resolves an org id through the snapshot's id index.
func (e *Engine) orgName(id *int) string {
	if id == nil {
		return ""
	}
	if org, ok := e.snap.OrgByID[*id]; ok {
		return org.Name
	}
	return ""
}

// outcome is the success outcome for the active run mode.
func (e *Engine) outcome() Outcome {
	if e.run.DryRun {
		return OutcomeDryRun
	}
	return OutcomeSuccess
}
