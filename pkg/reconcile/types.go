// Package reconcile implements the reconciliation engine that brings a
// remote CRM into agreement with an authoritative dataset. Matching is by
// normalized email, organization conflicts resolve by fixed policy, and
// change detection suppresses writes whose target state already holds.
package reconcile

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// NormalizeEmail canonicalizes an email address into an identity key.
// The identity key is the sole join key between the two record sets.
func NormalizeEmail(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// FoldName canonicalizes an organization name for case-insensitive lookup.
func FoldName(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// OrgRef is a single organization membership of an authoritative user:
// the organization's display name plus its external id.
type OrgRef struct {
	Name string
	ID   int
}

// User is one authoritative identity. Orgs is deduplicated by external id
// with first-seen order preserved. Prejoined, when non-empty, overrides the
// rendered organization list (pre-joined export schema).
type User struct {
	Email     string // normalized identity key
	Name      string
	UserID    string // external user identifier
	Orgs      []OrgRef
	Prejoined string
}

// EnrichmentValue returns the canonical "all organizations" string for the
// user. It is always recomputed from authoritative data, never merged with
// a prior CRM value.
func (u *User) EnrichmentValue() string {
	if u.Prejoined != "" {
		return u.Prejoined
	}
	return RenderOrgList(u.Orgs)
}

// Org is an authoritative organization, deduplicated by folded name.
type Org struct {
	Name string
	ID   int
}

// RemoteOrg is a CRM organization record. Organizations created during a
// run receive synthesized negative ids in dry-run mode.
type RemoteOrg struct {
	ID   int
	Name string
}

// RemoteContact is a CRM contact record, normalized at the ingestion
// boundary: Email holds the first non-empty normalized address (empty if
// the contact has none), and Fields holds the current values of the
// enrichment fields the engine manages, keyed by CRM field key.
type RemoteContact struct {
	ID     int
	Name   string
	Email  string
	OrgID  *int
	Fields map[string]string
}

// FieldValue returns the contact's current value for a CRM field key.
func (c *RemoteContact) FieldValue(key string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[key]
}

// Snapshot is the complete remote state the engine reconciles against.
// OrgByName is mutated in place as organizations are created so that later
// decisions in the same run observe them.
type Snapshot struct {
	OrgByName      map[string]*RemoteOrg // keyed by folded name
	OrgByID        map[int]*RemoteOrg
	ContactByEmail map[string]*RemoteContact // keyed by identity key
	Contacts       []*RemoteContact          // every fetched contact, ordered
}

// NewSnapshot returns an empty snapshot with initialized indices.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		OrgByName:      make(map[string]*RemoteOrg),
		OrgByID:        make(map[int]*RemoteOrg),
		ContactByEmail: make(map[string]*RemoteContact),
	}
}

// AddOrg inserts an organization into both org indices.
func (s *Snapshot) AddOrg(org *RemoteOrg) {
	s.OrgByName[FoldName(org.Name)] = org
	s.OrgByID[org.ID] = org
}

// AddContact inserts a contact into the snapshot. The email index keeps the
// last contact seen for a given identity key.
func (s *Snapshot) AddContact(c *RemoteContact) {
	s.Contacts = append(s.Contacts, c)
	if c.Email != "" {
		s.ContactByEmail[c.Email] = c
	}
}

// Run carries all run-scoped mutable state: the execution mode, declared
// configuration, and tallies. It is passed explicitly to every component;
// there are no process-wide singletons.
type Run struct {
	ID        string
	DryRun    bool
	StartedAt time.Time

	// LinkOnCreate controls whether newly created contacts receive an
	// organization link immediately or only via a later update pass.
	// Declared configuration, not inherent behavior.
	LinkOnCreate bool

	// TagAll makes the stray pass visit every CRM contact rather than only
	// authoritative misses, tagging contacts without a resolvable email.
	TagAll bool

	// Keys holds the resolved CRM field keys the engine writes to, constant
	// for the duration of a run. Keys left empty disable the corresponding
	// write.
	Keys FieldKeys

	Requests    int
	OrgsCreated int
	Created     int
	Updated     int
	Skipped     int
	Tagged      int
	Failed      int
}

// FieldKeys maps the logical fields the engine manages to their resolved
// CRM field keys. InDatabaseOption is the option id backing the "matched"
// label on enumerated-label CRMs; zero means the label is not written.
type FieldKeys struct {
	AllOrgs          string
	Status           string
	UserID           string
	Label            string
	InDatabaseOption int
}

// CountRequest records one outbound API request.
func (r *Run) CountRequest() { r.Requests++ }

// Mode returns the run mode string recorded in every output artifact.
func (r *Run) Mode() string {
	if r.DryRun {
		return "dry_run"
	}
	return "live"
}
