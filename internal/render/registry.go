// Package render maps field types to cell display and edit strategies.
//
// Lookup never fails. A type without a registered strategy, or a field the
// schema does not describe, resolves to Missing, which renders a visible
// placeholder so one bad field never blanks the rest of the row.
package render

import (
	"errors"

	"github.com/matthewbaird/railgrid/internal/schema"
)

// MissingPlaceholder is the display text of cells without a renderer.
const MissingPlaceholder = "MISSING DISPLAY ELEMENT"

var (
	// ErrReadOnly is returned by Parse for strategies without an edit path.
	ErrReadOnly = errors.New("field is read-only")
	// ErrInvalidInput is returned when control output does not fit the field.
	ErrInvalidInput = errors.New("invalid input")
)

// Control is the kind of edit control a strategy asks for.
type Control int

const (
	ControlNone Control = iota
	ControlCheckbox
	ControlText
	ControlSelect
	ControlMultiSelect
)

func (c Control) String() string {
	switch c {
	case ControlCheckbox:
		return "checkbox"
	case ControlText:
		return "text"
	case ControlSelect:
		return "select"
	case ControlMultiSelect:
		return "multiselect"
	default:
		return "none"
	}
}

// Context is what a strategy may consult besides the value.
type Context struct {
	Snapshot *schema.Snapshot
	Entity   string
	Field    schema.FieldDescriptor
}

// Cell is the Display-mode rendering of a value.
type Cell struct {
	Text    string
	Checked bool // BOOL cells
	Missing bool
}

// Editor describes the edit control for a value.
type Editor struct {
	Control Control
	// Editable is false for types that have no Editing state.
	Editable bool
	// Immediate controls commit on every change without entering Editing.
	Immediate        bool
	Seed             string
	Options          []string
	Selected         []schema.Reference
	Candidates       []string
	SelectAllOnFocus bool
	CommitOnBlur     bool
}

// Strategy renders and edits values of one field type.
type Strategy interface {
	Display(value any, ctx Context) Cell
	Editor(value any, ctx Context) Editor
	// Parse turns control output into the value to commit.
	Parse(input any, ctx Context) (any, error)
}

// Registry dispatches on schema.FieldType.
type Registry struct {
	strategies map[schema.FieldType]Strategy
}

// NewRegistry returns a registry with a strategy for every known type.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[schema.FieldType]Strategy)}
	r.Register(schema.FieldBool, Bool{})
	for _, ft := range []schema.FieldType{schema.FieldText, schema.FieldInt, schema.FieldFloat, schema.FieldDate} {
		r.Register(ft, Text{})
	}
	r.Register(schema.FieldJSON, JSON{})
	r.Register(schema.FieldList, List{})
	r.Register(schema.FieldMultiEntity, MultiEntity{})
	r.Register(schema.FieldEntity, Entity{})
	return r
}

// Register sets the strategy for ft, replacing any previous one.
func (r *Registry) Register(ft schema.FieldType, s Strategy) {
	r.strategies[ft] = s
}

// Unregister removes the strategy for ft so it falls back to Missing.
func (r *Registry) Unregister(ft schema.FieldType) {
	delete(r.strategies, ft)
}

// Lookup returns the strategy for ft, or Missing.
func (r *Registry) Lookup(ft schema.FieldType) Strategy {
	if s, ok := r.strategies[ft]; ok && s != nil {
		return s
	}
	return Missing{}
}

// ForField resolves a field through the snapshot. A field the snapshot does
// not describe resolves to Missing with a context carrying only the code.
func (r *Registry) ForField(snap *schema.Snapshot, entity, code string) (Strategy, Context) {
	fd, err := snap.Field(entity, code)
	if err != nil {
		return Missing{}, Context{Snapshot: snap, Entity: entity, Field: schema.FieldDescriptor{Code: code}}
	}
	ctx := Context{Snapshot: snap, Entity: entity, Field: fd}
	return r.Lookup(fd.Type), ctx
}
