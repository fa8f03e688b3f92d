// Package cell implements the per-cell Display/Editing state machine.
//
// Edit state lives in a Machine keyed by (row identity, column id). It is
// never stored on rows or reference values.
package cell

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/railgrid/internal/render"
	"github.com/matthewbaird/railgrid/internal/schema"
)

var (
	// ErrNoEditState is returned when activating a cell whose type has no
	// Editing state (BOOL, ENTITY, missing renderers).
	ErrNoEditState = errors.New("cell has no editing state")
	// ErrNotEditing is returned for edit gestures on a cell in Display.
	ErrNotEditing = errors.New("cell is not editing")
	// ErrNotToggle is returned when toggling a cell that does not commit on
	// toggle.
	ErrNotToggle = errors.New("cell does not toggle")
)

// State of one cell.
type State int

const (
	Display State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "display"
}

// Key identifies a cell.
type Key struct {
	RowID    string
	ColumnID string
}

func (k Key) String() string { return k.RowID + "/" + k.ColumnID }

// Outcome reports what a gesture did.
type Outcome struct {
	Committed bool
	Value     any
	Previous  any
}

// CommitFunc receives changed values. It runs synchronously inside the
// gesture; an error is returned from the gesture and the outcome is not
// committed.
type CommitFunc func(k Key, value any) error

type session struct {
	strategy render.Strategy
	ctx      render.Context
	editor   render.Editor
	original any
}

// Machine tracks which cells are editing and applies the commit rules.
type Machine struct {
	sessions map[Key]*session
	commit   CommitFunc
}

// NewMachine returns a machine in which every cell is in Display.
func NewMachine(commit CommitFunc) *Machine {
	if commit == nil {
		commit = func(Key, any) error { return nil }
	}
	return &Machine{sessions: make(map[Key]*session), commit: commit}
}

// State returns the state of k.
func (m *Machine) State(k Key) State {
	if _, ok := m.sessions[k]; ok {
		return Editing
	}
	return Display
}

// Editing reports whether k is in Editing.
func (m *Machine) Editing(k Key) bool { return m.State(k) == Editing }

// Editor returns the edit control of an editing cell.
func (m *Machine) Editor(k Key) (render.Editor, bool) {
	s, ok := m.sessions[k]
	if !ok {
		return render.Editor{}, false
	}
	return s.editor, true
}

// EditingKeys returns the cells currently editing.
func (m *Machine) EditingKeys() []Key {
	keys := make([]Key, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Reset returns every cell to Display without committing.
func (m *Machine) Reset() {
	clear(m.sessions)
}

// Activate moves k from Display to Editing. current is the value shown when
// editing starts; it is what Cancel reverts to and what commits compare
// against. Activating an editing cell is a no-op.
func (m *Machine) Activate(k Key, strategy render.Strategy, ctx render.Context, current any) (render.Editor, error) {
	if s, ok := m.sessions[k]; ok {
		return s.editor, nil
	}
	ed := strategy.Editor(current, ctx)
	if !ed.Editable {
		return render.Editor{}, fmt.Errorf("%w: %s (%s)", ErrNoEditState, k, ctx.Field.Type)
	}
	m.sessions[k] = &session{strategy: strategy, ctx: ctx, editor: ed, original: current}
	return ed, nil
}

// Cancel discards the edit. The cell keeps its pre-edit value.
func (m *Machine) Cancel(k Key) error {
	if _, ok := m.sessions[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotEditing, k)
	}
	delete(m.sessions, k)
	return nil
}

// Confirm parses input and commits it unless unchanged. On a parse error the
// cell stays in Editing.
func (m *Machine) Confirm(k Key, input any) (Outcome, error) {
	s, ok := m.sessions[k]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotEditing, k)
	}
	value, err := s.strategy.Parse(input, s.ctx)
	if err != nil {
		return Outcome{}, err
	}
	delete(m.sessions, k)
	return m.apply(k, s.original, value)
}

// Blur handles loss of focus. Free-text controls commit as on Confirm;
// other controls return to Display without committing.
func (m *Machine) Blur(k Key, input any) (Outcome, error) {
	s, ok := m.sessions[k]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotEditing, k)
	}
	if !s.editor.CommitOnBlur {
		delete(m.sessions, k)
		return Outcome{}, nil
	}
	return m.Confirm(k, input)
}

// Toggle commits a checkbox change directly from Display.
func (m *Machine) Toggle(k Key, strategy render.Strategy, ctx render.Context, current any, checked bool) (Outcome, error) {
	ed := strategy.Editor(current, ctx)
	if !ed.Immediate {
		return Outcome{}, fmt.Errorf("%w: %s (%s)", ErrNotToggle, k, ctx.Field.Type)
	}
	value, err := strategy.Parse(checked, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return m.apply(k, current, value)
}

func (m *Machine) apply(k Key, old, value any) (Outcome, error) {
	if Unchanged(old, value) {
		return Outcome{Value: old, Previous: old}, nil
	}
	if err := m.commit(k, value); err != nil {
		return Outcome{Value: old, Previous: old}, fmt.Errorf("commit %s: %w", k, err)
	}
	return Outcome{Committed: true, Value: value, Previous: old}, nil
}

// Unchanged reports whether committing value over old is a no-op: the two
// are structurally equal, or both are empty.
func Unchanged(old, value any) bool {
	if schema.Equal(old, value) {
		return true
	}
	return schema.IsEmpty(old) && schema.IsEmpty(value)
}
