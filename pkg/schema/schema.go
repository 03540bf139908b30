// Package schema resolves the logical fields the sync engine writes to
// into concrete CRM field handles, creating missing custom fields and
// resolving enumerated option labels to their backing option ids.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/ligrlabs/crmsync/pkg/errors"
	"github.com/ligrlabs/crmsync/pkg/logging"
)

// Kind is a CRM field kind. Values match the remote service's field types.
type Kind string

// Field kinds.
const (
	// KindText is a free-text field.
	KindText Kind = "text"

	// KindVarchar is a short text field.
	KindVarchar Kind = "varchar"

	// KindEnum is a single-select field with enumerated options.
	KindEnum Kind = "enum"
)

// Spec is a logical field specification: what the engine calls the field,
// what the CRM displays it as, and how to create it when absent. A Spec
// with Key set refers to a built-in field matched by key; built-ins are
// never created.
type Spec struct {
	Logical string   `yaml:"logical"`
	Name    string   `yaml:"name"`
	Key     string   `yaml:"key,omitempty"`
	Kind    Kind     `yaml:"kind"`
	Options []string `yaml:"options,omitempty"`
}

// Field is a CRM field definition as reported by the remote service.
type Field struct {
	Key     string
	Name    string
	Kind    Kind
	Options []Option
}

// Option is one value of an enumerated field.
type Option struct {
	ID    int
	Label string
}

// Handle maps a resolved field to its CRM key and, for enumerated fields,
// its option labels to option ids. Resolved once per run and constant
// thereafter.
type Handle struct {
	Key     string
	Options map[string]int // keyed by uppercased label
}

// Handles is the resolved handle set keyed by logical field name.
type Handles map[string]Handle

// Key returns the CRM field key for a logical name, empty if unresolved.
func (h Handles) Key(logical string) string {
	return h[logical].Key
}

// Option returns the option id backing a label on an enumerated field.
func (h Handles) Option(logical, label string) (int, bool) {
	handle, ok := h[logical]
	if !ok || handle.Options == nil {
		return 0, false
	}
	id, ok := handle.Options[strings.ToUpper(label)]
	return id, ok
}

// API is the narrow view of the CRM the resolver needs.
type API interface {
	// ListPersonFields returns every contact field definition.
	ListPersonFields(ctx context.Context) ([]Field, error)

	// CreatePersonField creates a contact field of the given kind, with
	// option labels for enumerated kinds.
	CreatePersonField(ctx context.Context, name string, kind Kind, options []string) (*Field, error)
}

// Resolve looks up each spec by exact display name (or by key for
// built-ins), creates missing custom fields, and resolves enumerated
// option labels. An option label that cannot be resolved after creation is
// fatal: contact writes depend on stable option identifiers. In dry-run
// mode missing fields get placeholder handles and no creation occurs.
func Resolve(ctx context.Context, api API, specs []Spec, dryRun bool) (Handles, error) {
	fields, err := api.ListPersonFields(ctx)
	if err != nil {
		return nil, err
	}

	handles := make(Handles, len(specs))
	for _, spec := range specs {
		field := find(fields, spec)
		switch {
		case field != nil:
			logging.Debug().Str("field", spec.Name).Str("key", field.Key).Msg("Found existing field")

		case spec.Key != "":
			return nil, &errors.SchemaError{
				Field:   spec.Key,
				Message: "built-in field missing from the remote service",
			}

		case dryRun:
			handles[spec.Logical] = placeholder(spec)
			logging.Info().Str("field", spec.Name).Msg("Would create field")
			continue

		default:
			field, err = api.CreatePersonField(ctx, spec.Name, spec.Kind, spec.Options)
			if err != nil {
				return nil, &errors.SchemaError{Field: spec.Name, Message: "creation failed", Err: err}
			}
			logging.Info().Str("field", spec.Name).Str("key", field.Key).Msg("Created field")
		}

		handle := Handle{Key: field.Key}
		if spec.Kind == KindEnum {
			handle.Options = make(map[string]int, len(spec.Options))
			for _, label := range spec.Options {
				id, ok := option(field, label)
				if !ok {
					return nil, &errors.SchemaError{
						Field:   spec.Name,
						Option:  label,
						Message: "option label unresolved",
					}
				}
				handle.Options[strings.ToUpper(label)] = id
			}
		}
		handles[spec.Logical] = handle
	}

	return handles, nil
}

// find matches a spec against the field list: by key for built-ins, by
// exact display name otherwise.
func find(fields []Field, spec Spec) *Field {
	for i := range fields {
		if spec.Key != "" {
			if fields[i].Key == spec.Key {
				return &fields[i]
			}
			continue
		}
		if fields[i].Name == spec.Name {
			return &fields[i]
		}
	}
	return nil
}

// option resolves a label case-insensitively against a field's options.
func option(field *Field, label string) (int, bool) {
	for _, opt := range field.Options {
		if strings.EqualFold(opt.Label, label) {
			return opt.ID, true
		}
	}
	return 0, false
}

// placeholder synthesizes a dry-run handle for a field that would be
// created in live mode. Option ids count down from -1 so they stay
// distinguishable from real ids in the decision log.
func placeholder(spec Spec) Handle {
	handle := Handle{Key: fmt.Sprintf("dry-run:%s", spec.Logical)}
	if spec.Kind == KindEnum {
		handle.Options = make(map[string]int, len(spec.Options))
		for i, label := range spec.Options {
			handle.Options[strings.ToUpper(label)] = -(i + 1)
		}
	}
	return handle
}
