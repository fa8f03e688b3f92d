package railgun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Filter operators understood by the backend.
const (
	OpIs          = "is"
	OpIsNot       = "is_not"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Group operators.
const (
	And = "AND"
	Or  = "OR"
)

// Condition is a single [field, operator, value] triple.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// MarshalJSON writes the triple as a JSON array.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Field, c.Operator, c.Value})
}

// Filter is a group of conditions and nested groups joined by one operator.
type Filter struct {
	Operator   string
	Conditions []Condition
	Groups     []Filter
}

// StartsWith returns the single-condition filter used for prefix search.
func StartsWith(field, prefix string) *Filter {
	return &Filter{
		Operator:   And,
		Conditions: []Condition{{Field: field, Operator: OpStartsWith, Value: prefix}},
	}
}

type wireFilter struct {
	Operator string            `json:"filter_operator"`
	Filters  []json.RawMessage `json:"filters"`
}

// MarshalJSON writes {filter_operator, filters: [triple..., group...]}.
func (f Filter) MarshalJSON() ([]byte, error) {
	op := f.Operator
	if op == "" {
		op = And
	}
	w := wireFilter{Operator: op, Filters: make([]json.RawMessage, 0, len(f.Conditions)+len(f.Groups))}
	for _, c := range f.Conditions {
		b, err := c.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.Filters = append(w.Filters, b)
	}
	for _, g := range f.Groups {
		b, err := g.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.Filters = append(w.Filters, b)
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the nested wire form. Array members are conditions,
// object members are nested groups.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFilter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Filter{Operator: strings.ToUpper(w.Operator)}
	if out.Operator == "" {
		out.Operator = And
	}
	if out.Operator != And && out.Operator != Or {
		return fmt.Errorf("unknown filter operator '%s'", w.Operator)
	}
	for i, raw := range w.Filters {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '[':
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var triple []any
			if err := dec.Decode(&triple); err != nil {
				return fmt.Errorf("filter %d: %w", i, err)
			}
			if len(triple) != 3 {
				return fmt.Errorf("filter %d: expected [field, operator, value]", i)
			}
			field, ok1 := triple[0].(string)
			op, ok2 := triple[1].(string)
			if !ok1 || !ok2 {
				return fmt.Errorf("filter %d: field and operator must be strings", i)
			}
			out.Conditions = append(out.Conditions, Condition{Field: field, Operator: op, Value: triple[2]})
		case '{':
			var g Filter
			if err := g.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("filter %d: %w", i, err)
			}
			out.Groups = append(out.Groups, g)
		default:
			return fmt.Errorf("filter %d: expected array or object", i)
		}
	}
	*f = out
	return nil
}
