package reconcile

// OrgAction tags how a decision treated the contact's organization link.
type OrgAction string

// Organization link actions.
const (
	// OrgActionKept means the contact's current link matched an
	// authoritative candidate and was preserved.
	OrgActionKept OrgAction = "kept"

	// OrgActionUpdated means the link was moved to the first authoritative
	// candidate.
	OrgActionUpdated OrgAction = "updated"

	// OrgActionNotFound means the target organization could not be resolved
	// by name; the link was left untouched.
	OrgActionNotFound OrgAction = "not_found"

	// OrgActionCreatePending means the contact was created without an
	// organization link; linking is deferred to a later update pass.
	OrgActionCreatePending OrgAction = "create_pending"

	// OrgActionLinked means the contact was created with an organization
	// link (link-on-create configuration).
	OrgActionLinked OrgAction = "linked"

	// OrgActionNone means the decision did not concern the link at all
	// (stray tagging rows).
	OrgActionNone OrgAction = ""
)

// Outcome is the terminal state of a decision.
type Outcome string

// Decision outcomes.
const (
	OutcomePending Outcome = "pending"
	OutcomeNoop    Outcome = "no_op"
	OutcomeDryRun  Outcome = "dry_run"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Status tags written to the CRM's status field.
const (
	// StatusInDatabase marks contacts matched by an authoritative identity.
	StatusInDatabase = "in db"

	// StatusNotInDatabase marks CRM-only contacts.
	StatusNotInDatabase = "not in db"

	// StatusUnknown marks CRM contacts with no resolvable email. Only the
	// tag-all pass produces it.
	StatusUnknown = "unknown"
)

// Decision is the durable record of how one identity was reconciled.
// Every identity processed in a run contributes exactly one Decision,
// no-ops included.
type Decision struct {
	Email       string
	Name        string
	ContactID   int // 0 when no CRM contact was matched or created
	PreviousOrg string
	NewOrg      string
	OrgAction   OrgAction
	AllOrgs     string
	StatusTag   string
	Outcome     Outcome
	Err         string
}

// OrgResult records the outcome of one organization pre-creation attempt.
type OrgResult struct {
	Name    string
	ID      int // assigned CRM id, negative placeholder in dry-run mode
	Outcome Outcome
	Err     string
}

// ContactWrite is the structured request the engine hands to a Writer for
// a contact create or update. Fields carries managed custom-field values
// keyed by resolved CRM field key; it never leaves the applier boundary as
// a loose payload.
type ContactWrite struct {
	Name   string
	Email  string // set on creates only
	OrgID  *int
	Label  *int // enumerated label option id
	Fields map[string]string
}
