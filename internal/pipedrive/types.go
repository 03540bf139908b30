package pipedrive

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// envelope is the response wrapper every endpoint returns.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// pagination is the cursor block of a paginated response.
type pagination struct {
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             *int `json:"next_start"`
}

type additionalData struct {
	Pagination pagination `json:"pagination"`
}

// Organization is a CRM organization record.
type Organization struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type orgListResponse struct {
	envelope
	Data           []Organization `json:"data"`
	AdditionalData additionalData `json:"additional_data"`
}

type orgCreateRequest struct {
	Name string `json:"name"`
}

type orgCreateResponse struct {
	envelope
	Data Organization `json:"data"`
}

// personListResponse defers per-record decoding so managed custom-field
// values, whose keys are only known at runtime, can be extracted.
type personListResponse struct {
	envelope
	Data           []json.RawMessage `json:"data"`
	AdditionalData additionalData    `json:"additional_data"`
}

// Person is a CRM contact record as decoded from the wire. Custom holds
// the requested managed-field values, stringified.
type Person struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Emails []PersonEmail `json:"email"`
	OrgID  OrgIDRef      `json:"org_id"`
	Custom map[string]string `json:"-"`
}

// PersonEmail is one email entry on a contact. The service emits either a
// bare string or a {label, value, primary} object; both decode to Value.
type PersonEmail struct {
	Value   string
	Primary bool
}

// UnmarshalJSON accepts both wire shapes of an email entry.
func (e *PersonEmail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Value = s
		return nil
	}

	var obj struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Value = obj.Value
	e.Primary = obj.Primary
	return nil
}

// OrgIDRef is a contact's organization link. The service emits null, a
// bare id, or an expanded {value, name} object.
type OrgIDRef struct {
	ID    int
	Valid bool
}

// UnmarshalJSON accepts every wire shape of an organization link.
func (o *OrgIDRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.Valid = false
		return nil
	}

	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		o.ID = id
		o.Valid = true
		return nil
	}

	var obj struct {
		Value *int `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Value != nil {
		o.ID = *obj.Value
		o.Valid = true
	}
	return nil
}

// PersonWrite is the payload for a contact create or update. Fields holds
// managed custom-field values keyed by CRM field key; they are merged into
// the payload at marshal time, which is the only place the dynamic keys
// surface.
type PersonWrite struct {
	Name   string
	Email  string
	OrgID  *int
	Label  *int
	Fields map[string]string
}

// MarshalJSON flattens the write into the service's payload shape.
func (w *PersonWrite) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(w.Fields)+4)
	if w.Name != "" {
		payload["name"] = w.Name
	}
	if w.Email != "" {
		payload["email"] = w.Email
	}
	if w.OrgID != nil {
		payload["org_id"] = *w.OrgID
	}
	if w.Label != nil {
		payload["label"] = *w.Label
	}
	for k, v := range w.Fields {
		payload[k] = v
	}
	return json.Marshal(payload)
}

type personCreateResponse struct {
	envelope
	Data struct {
		ID int `json:"id"`
	} `json:"data"`
}

type personUpdateResponse struct {
	envelope
}

// fieldResponse is a contact field definition on the wire.
type fieldResponse struct {
	Key       string           `json:"key"`
	Name      string           `json:"name"`
	FieldType string           `json:"field_type"`
	Options   []optionResponse `json:"options"`
}

type optionResponse struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type fieldListResponse struct {
	envelope
	Data []fieldResponse `json:"data"`
}

type fieldCreateRequest struct {
	Name      string               `json:"name"`
	FieldType string               `json:"field_type"`
	Options   []fieldOptionRequest `json:"options,omitempty"`
}

type fieldOptionRequest struct {
	Label string `json:"label"`
}

type fieldCreateResponse struct {
	envelope
	Data fieldResponse `json:"data"`
}

// User is the authenticated CRM user, used for the connection preflight.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userResponse struct {
	envelope
	Data User `json:"data"`
}

// stringify renders a decoded JSON value the way the engine compares
// field values: integral numbers without a fraction, null as empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
