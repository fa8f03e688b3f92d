package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/go-cmp/cmp"
)

// IdentityField is the mandatory identity column of every row.
const IdentityField = "uid"

// ID is a record identity as served by the backend. Numeric identities keep
// their JSON number form so they round-trip unchanged in write requests.
type ID struct {
	value   string
	numeric bool
}

// StringID returns a string identity.
func StringID(s string) ID { return ID{value: s} }

// NumberID returns a numeric identity.
func NumberID(n int64) ID { return ID{value: strconv.FormatInt(n, 10), numeric: true} }

// IDOf converts a decoded JSON value into an ID.
func IDOf(v any) ID {
	switch t := v.(type) {
	case ID:
		return t
	case string:
		return StringID(t)
	case json.Number:
		return ID{value: t.String(), numeric: true}
	case float64:
		return ID{value: strconv.FormatFloat(t, 'f', -1, 64), numeric: true}
	case int:
		return NumberID(int64(t))
	case int64:
		return NumberID(t)
	case nil:
		return ID{}
	default:
		return StringID(fmt.Sprint(t))
	}
}

// String returns the identity as text.
func (id ID) String() string { return id.value }

// IsZero reports whether the identity is unset.
func (id ID) IsZero() bool { return id.value == "" }

// Equal compares identities by value, ignoring the JSON kind.
func (id ID) Equal(o ID) bool { return id.value == o.value }

// MarshalJSON writes the identity as a JSON number or string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity must be a string or number: %w", err)
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}

// Reference is a denormalized snapshot of another record: its entity type,
// identity and display name. It is not a live pointer.
type Reference struct {
	Type    string
	UID     ID
	Display string
	// DisplayCol is the display-name field of Type, used as the JSON key for
	// Display.
	DisplayCol string
}

// Label returns the display name, falling back to the identity.
func (r Reference) Label() string {
	if r.Display != "" {
		return r.Display
	}
	return r.UID.String()
}

// MarshalJSON writes {type, uid, <display col>: display}.
func (r Reference) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	t, _ := json.Marshal(r.Type)
	buf.Write(t)
	buf.WriteString(`,"uid":`)
	uid, err := r.UID.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf.Write(uid)
	if r.DisplayCol != "" && r.DisplayCol != "type" && r.DisplayCol != IdentityField {
		k, _ := json.Marshal(r.DisplayCol)
		v, _ := json.Marshal(r.Display)
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ReferenceFrom builds a Reference from a decoded record object. The
// display name is resolved through the snapshot; when the type is not part
// of the snapshot the reference keeps an empty display name.
func ReferenceFrom(snap *Snapshot, defaultType string, obj map[string]any) Reference {
	ref := Reference{Type: defaultType, UID: IDOf(obj[IdentityField])}
	if t, ok := obj["type"].(string); ok && t != "" {
		ref.Type = t
	}
	ref.DisplayCol = snap.DisplayNameCol(ref.Type)
	if ref.DisplayCol != "" {
		ref.Display = Text(obj[ref.DisplayCol])
	}
	return ref
}

// Row is one record: field code to value. Rows are values; a change
// produces a new Row via With.
type Row map[string]any

// ID returns the row identity.
func (r Row) ID() ID { return IDOf(r[IdentityField]) }

// With returns a copy of the row with one field replaced.
func (r Row) With(field string, value any) Row {
	out := make(Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[field] = value
	return out
}

// Text renders a scalar value as plain text.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case ID:
		return t.String()
	case Reference:
		return t.Label()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// IsEmpty reports whether a value counts as unset: nil, false, zero, the
// empty string, or an empty list or object.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case []any:
		return len(t) == 0
	case []Reference:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case *Reference:
		return t == nil
	default:
		return false
	}
}

// Equal reports structural equality. A number and a string with the same
// text are equal, since edit controls commit what was typed.
func Equal(a, b any) bool {
	if cmp.Equal(a, b) {
		return true
	}
	sa, okA := numericOrString(a)
	sb, okB := numericOrString(b)
	return okA && okB && sa == sb
}

func numericOrString(v any) (string, bool) {
	switch t := v.(type) {
	case string, json.Number, float64, int, int64:
		return Text(t), true
	default:
		return "", false
	}
}
