package render

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/matthewbaird/railgrid/internal/schema"
)

const (
	glyphChecked   = "[x]"
	glyphUnchecked = "[ ]"
)

// Bool renders a checkbox that commits on toggle.
type Bool struct{}

func (Bool) Display(value any, _ Context) Cell {
	if truthy(value) {
		return Cell{Text: glyphChecked, Checked: true}
	}
	return Cell{Text: glyphUnchecked}
}

func (Bool) Editor(value any, _ Context) Editor {
	return Editor{Control: ControlCheckbox, Immediate: true, Seed: fmt.Sprint(truthy(value))}
}

func (Bool) Parse(input any, _ Context) (any, error) {
	switch v := input.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%w: expected a boolean, got %v", ErrInvalidInput, input)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}

// Text renders TEXT, INT, FLOAT and DATE fields as their raw value.
type Text struct{}

func (Text) Display(value any, _ Context) Cell {
	return Cell{Text: schema.Text(value)}
}

func (Text) Editor(value any, _ Context) Editor {
	return Editor{
		Control:          ControlText,
		Editable:         true,
		Seed:             schema.Text(value),
		SelectAllOnFocus: true,
		CommitOnBlur:     true,
	}
}

// Parse commits the trimmed input. No coercion: the service converts.
func (Text) Parse(input any, _ Context) (any, error) {
	return strings.TrimSpace(schema.Text(input)), nil
}

// JSON renders structured values as serialized text.
type JSON struct{}

func (JSON) Display(value any, _ Context) Cell {
	return Cell{Text: serialize(value)}
}

func (JSON) Editor(value any, _ Context) Editor {
	return Editor{
		Control:          ControlText,
		Editable:         true,
		Seed:             serialize(value),
		SelectAllOnFocus: true,
		CommitOnBlur:     true,
	}
}

// Parse commits the raw text; the service parses it.
func (JSON) Parse(input any, _ Context) (any, error) {
	return schema.Text(input), nil
}

func serialize(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// List renders a single select over the field's enumerated options.
type List struct{}

func (List) Display(value any, _ Context) Cell {
	return Cell{Text: schema.Text(value)}
}

func (List) Editor(value any, ctx Context) Editor {
	return Editor{
		Control:  ControlSelect,
		Editable: true,
		Seed:     schema.Text(value),
		Options:  append([]string(nil), ctx.Field.Params.Options...),
	}
}

func (List) Parse(input any, ctx Context) (any, error) {
	choice := schema.Text(input)
	if choice == "" {
		return nil, nil
	}
	if opts := ctx.Field.Params.Options; len(opts) > 0 && !slices.Contains(opts, choice) {
		return nil, fmt.Errorf("%w: '%s' is not an option of '%s'", ErrInvalidInput, choice, ctx.Field.Code)
	}
	return choice, nil
}

// MultiEntity renders a list of references and edits it through an async
// multi-select fed by autocomplete.
type MultiEntity struct{}

func (MultiEntity) Display(value any, ctx Context) Cell {
	refs := References(ctx.Snapshot, ctx.Field, value)
	labels := make([]string, len(refs))
	for i, r := range refs {
		labels[i] = r.Label()
	}
	return Cell{Text: strings.Join(labels, ", ")}
}

func (MultiEntity) Editor(value any, ctx Context) Editor {
	return Editor{
		Control:    ControlMultiSelect,
		Editable:   true,
		Selected:   References(ctx.Snapshot, ctx.Field, value),
		Candidates: append([]string(nil), ctx.Field.Params.Targets...),
	}
}

// Parse commits the ordered selection, or nil when it is empty.
func (MultiEntity) Parse(input any, ctx Context) (any, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case []schema.Reference:
		if len(v) == 0 {
			return nil, nil
		}
		return slices.Clone(v), nil
	case []any:
		refs := References(ctx.Snapshot, ctx.Field, v)
		if len(refs) != len(v) {
			return nil, fmt.Errorf("%w: selection must hold record references", ErrInvalidInput)
		}
		if len(refs) == 0 {
			return nil, nil
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of references, got %T", ErrInvalidInput, input)
	}
}

// Entity renders the display name of a single reference. It has no edit
// path.
type Entity struct{}

func (Entity) Display(value any, ctx Context) Cell {
	refs := References(ctx.Snapshot, ctx.Field, value)
	if len(refs) == 0 {
		return Cell{}
	}
	return Cell{Text: refs[0].Label()}
}

func (Entity) Editor(any, Context) Editor {
	return Editor{Control: ControlNone}
}

func (Entity) Parse(any, Context) (any, error) {
	return nil, ErrReadOnly
}

// Missing is the fallback for unregistered types and undescribed fields.
type Missing struct{}

func (Missing) Display(any, Context) Cell {
	return Cell{Text: MissingPlaceholder, Missing: true}
}

func (Missing) Editor(any, Context) Editor {
	return Editor{Control: ControlNone}
}

func (Missing) Parse(any, Context) (any, error) {
	return nil, ErrReadOnly
}

// References normalizes a stored reference value. It accepts decoded
// references as well as raw {type, uid, ...} objects; members that are not
// objects are skipped.
func References(snap *schema.Snapshot, fd schema.FieldDescriptor, value any) []schema.Reference {
	defaultType := ""
	if len(fd.Params.Targets) == 1 {
		defaultType = fd.Params.Targets[0]
	}
	switch v := value.(type) {
	case schema.Reference:
		return []schema.Reference{v}
	case *schema.Reference:
		if v == nil {
			return nil
		}
		return []schema.Reference{*v}
	case []schema.Reference:
		return v
	case map[string]any:
		return []schema.Reference{schema.ReferenceFrom(snap, defaultType, v)}
	case []any:
		out := make([]schema.Reference, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case schema.Reference:
				out = append(out, it)
			case map[string]any:
				out = append(out, schema.ReferenceFrom(snap, defaultType, it))
			}
		}
		return out
	default:
		return nil
	}
}
