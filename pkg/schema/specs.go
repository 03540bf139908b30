package schema

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ligrlabs/crmsync/pkg/errors"
)

// Logical field names used by the engine.
const (
	LogicalAllOrgs = "all_orgs"
	LogicalStatus  = "status"
	LogicalUserID  = "user_id"
	LogicalLabel   = "label"
)

// InDatabaseLabel is the enumerated label applied to matched contacts.
const InDatabaseLabel = "IN DATABASE"

// SyncSpecs returns the field specifications for the full sync pipeline.
func SyncSpecs() []Spec {
	return []Spec{
		{Logical: LogicalAllOrgs, Name: "All LIGR Organizations", Kind: KindText},
		{Logical: LogicalStatus, Name: "DB Status", Kind: KindVarchar},
		{Logical: LogicalUserID, Name: "User ID", Kind: KindVarchar},
	}
}

// EnrichSpecs returns the field specifications for the enrichment
// pipeline, including the built-in label field whose "IN DATABASE" option
// marks matched contacts.
func EnrichSpecs() []Spec {
	return []Spec{
		{Logical: LogicalUserID, Name: "User ID", Kind: KindVarchar},
		{Logical: LogicalAllOrgs, Name: "All LIGR Organizations", Kind: KindText},
		{Logical: LogicalStatus, Name: "DB Status", Kind: KindVarchar},
		{Logical: LogicalLabel, Name: "Label", Key: "label", Kind: KindEnum, Options: []string{InDatabaseLabel}},
	}
}

// specFile is the on-disk shape of a field specification file.
type specFile struct {
	Fields []Spec `yaml:"fields"`
}

// LoadSpecs reads field specifications from a YAML file. Each entry needs
// a logical name, a display name (or built-in key), and a kind.
func LoadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var file specFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	for _, spec := range file.Fields {
		if spec.Logical == "" {
			return nil, &errors.ValidationError{Field: "logical", Message: "field spec missing logical name"}
		}
		if spec.Name == "" && spec.Key == "" {
			return nil, &errors.ValidationError{Field: "name", Message: "field spec needs a display name or built-in key"}
		}
		switch spec.Kind {
		case KindText, KindVarchar, KindEnum:
		default:
			return nil, &errors.ValidationError{Field: "kind", Value: spec.Kind, Message: "unsupported field kind"}
		}
	}

	return file.Fields, nil
}
