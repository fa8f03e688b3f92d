// Package grid owns the row and column state of one entity view.
//
// Rows are treated as values. Set is the only mutation: it builds a new row
// for the edited record and a new row slice in which every other element is
// the identical map held before, so earlier slices returned by Rows stay
// valid and untouched rows keep their identity.
package grid

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/railgrid/internal/schema"
)

// Column ids of the synthetic columns.
const (
	SelectColumnID = "select-col"
	AddColumnID    = "add-col"
	AddHeader      = "+"
)

// DefaultWidth is the initial width of field columns.
const DefaultWidth = 150

// FitContent marks a column sized by its content.
const FitContent = 0

var (
	ErrUnknownColumn  = errors.New("unknown column")
	ErrRowOutOfRange  = errors.New("row index out of range")
	ErrNotResizable   = errors.New("column is not resizable")
	ErrNotFieldColumn = errors.New("not a field column")
)

// Kind distinguishes synthetic columns from field columns.
type Kind int

const (
	KindSelect Kind = iota
	KindField
	KindAdd
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindAdd:
		return "add"
	default:
		return "field"
	}
}

// Column is the metadata of one grid column.
type Column struct {
	ID        string
	Header    string
	Kind      Kind
	Width     int
	Resizable bool
	Hidden    bool
	Field     schema.FieldDescriptor
}

// Table is the engine-owned state of one (schema, entity) view.
type Table struct {
	snap     *schema.Snapshot
	entity   string
	columns  []Column
	index    map[string]int
	rows     []schema.Row
	selected map[string]bool
}

// Build derives the column set from the entity's fields, in schema order,
// framed by the selection column and the inert add column.
func Build(snap *schema.Snapshot, entityType string, rows []schema.Row) (*Table, error) {
	e, err := snap.Entity(entityType)
	if err != nil {
		return nil, err
	}
	fields := e.Fields()
	cols := make([]Column, 0, len(fields)+2)
	cols = append(cols, Column{ID: SelectColumnID, Kind: KindSelect, Width: FitContent})
	for _, f := range fields {
		cols = append(cols, Column{
			ID:        f.Code,
			Header:    f.Name,
			Kind:      KindField,
			Width:     DefaultWidth,
			Resizable: true,
			Field:     f,
		})
	}
	cols = append(cols, Column{ID: AddColumnID, Header: AddHeader, Kind: KindAdd, Width: FitContent})

	t := &Table{
		snap:     snap,
		entity:   entityType,
		columns:  cols,
		index:    make(map[string]int, len(cols)),
		rows:     append([]schema.Row(nil), rows...),
		selected: make(map[string]bool),
	}
	for i, c := range cols {
		t.index[c.ID] = i
	}
	return t, nil
}

// Snapshot returns the schema the table was built from.
func (t *Table) Snapshot() *schema.Snapshot { return t.snap }

// Entity returns the entity type shown by the table.
func (t *Table) Entity() string { return t.entity }

// Columns returns all columns in display order, hidden ones included.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// VisibleColumns returns the columns that are not hidden.
func (t *Table) VisibleColumns() []Column {
	out := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// Column returns one column by id.
func (t *Table) Column(id string) (Column, error) {
	i, ok := t.index[id]
	if !ok {
		return Column{}, fmt.Errorf("%w: '%s'", ErrUnknownColumn, id)
	}
	return t.columns[i], nil
}

// TotalWidth is the summed width of the visible columns.
func (t *Table) TotalWidth() int {
	total := 0
	for _, c := range t.columns {
		if !c.Hidden {
			total += c.Width
		}
	}
	return total
}

// Resize sets the width of a resizable column. No bounds are enforced.
func (t *Table) Resize(id string, width int) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownColumn, id)
	}
	if !t.columns[i].Resizable {
		return fmt.Errorf("%w: '%s'", ErrNotResizable, id)
	}
	t.columns[i].Width = width
	return nil
}

// SetHidden shows or hides a field column.
func (t *Table) SetHidden(id string, hidden bool) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownColumn, id)
	}
	if t.columns[i].Kind != KindField {
		return fmt.Errorf("%w: '%s'", ErrNotFieldColumn, id)
	}
	t.columns[i].Hidden = hidden
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the current row slice. Callers must not modify it.
func (t *Table) Rows() []schema.Row { return t.rows }

// Row returns row i.
func (t *Table) Row(i int) (schema.Row, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, i, len(t.rows))
	}
	return t.rows[i], nil
}

// RowIndex finds a row by identity.
func (t *Table) RowIndex(id schema.ID) (int, bool) {
	for i, r := range t.rows {
		if r.ID().Equal(id) {
			return i, true
		}
	}
	return -1, false
}

// Value returns the value of a field cell.
func (t *Table) Value(i int, columnID string) (any, error) {
	row, err := t.Row(i)
	if err != nil {
		return nil, err
	}
	if err := t.fieldColumn(columnID); err != nil {
		return nil, err
	}
	return row[columnID], nil
}

// Set replaces one field of one row and returns the previous value.
func (t *Table) Set(i int, columnID string, value any) (any, error) {
	row, err := t.Row(i)
	if err != nil {
		return nil, err
	}
	if err := t.fieldColumn(columnID); err != nil {
		return nil, err
	}
	prev := row[columnID]
	next := make([]schema.Row, len(t.rows))
	copy(next, t.rows)
	next[i] = row.With(columnID, value)
	t.rows = next
	return prev, nil
}

func (t *Table) fieldColumn(id string) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownColumn, id)
	}
	if t.columns[i].Kind != KindField {
		return fmt.Errorf("%w: '%s'", ErrNotFieldColumn, id)
	}
	return nil
}

// ToggleRow flips the selection of row i.
func (t *Table) ToggleRow(i int) error {
	row, err := t.Row(i)
	if err != nil {
		return err
	}
	id := row.ID().String()
	if t.selected[id] {
		delete(t.selected, id)
	} else {
		t.selected[id] = true
	}
	return nil
}

// IsSelected reports whether row i is selected.
func (t *Table) IsSelected(i int) bool {
	if i < 0 || i >= len(t.rows) {
		return false
	}
	return t.selected[t.rows[i].ID().String()]
}

// AllSelected reports whether every row is selected. An empty table is
// never all-selected.
func (t *Table) AllSelected() bool {
	if len(t.rows) == 0 {
		return false
	}
	for _, r := range t.rows {
		if !t.selected[r.ID().String()] {
			return false
		}
	}
	return true
}

// ToggleAll selects every row, or clears the selection when all rows are
// already selected.
func (t *Table) ToggleAll() {
	if t.AllSelected() {
		clear(t.selected)
		return
	}
	for _, r := range t.rows {
		t.selected[r.ID().String()] = true
	}
}

// Selected returns the indexes of selected rows in table order.
func (t *Table) Selected() []int {
	var out []int
	for i, r := range t.rows {
		if t.selected[r.ID().String()] {
			out = append(out, i)
		}
	}
	return out
}
