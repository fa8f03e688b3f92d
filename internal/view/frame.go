package view

import (
	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/cell"
	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/headermenu"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// Frame is a complete render of the view.
type Frame struct {
	Schema      string           `json:"schema"`
	Entity      string           `json:"entity"`
	Filter      string           `json:"filter,omitempty"`
	Loaded      bool             `json:"loaded"`
	Loading     bool             `json:"loading,omitempty"`
	Error       string           `json:"error,omitempty"`
	Columns     []FrameColumn    `json:"columns,omitempty"`
	TotalWidth  int              `json:"total_width,omitempty"`
	AllSelected bool             `json:"all_selected,omitempty"`
	Rows        []FrameRow       `json:"rows,omitempty"`
	Menu        *headermenu.Menu `json:"menu,omitempty"`
}

// FrameColumn is a visible column header.
type FrameColumn struct {
	ID        string `json:"id"`
	Header    string `json:"header"`
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	Width     int    `json:"width"`
	Resizable bool   `json:"resizable"`
}

// FrameRow is one rendered record.
type FrameRow struct {
	ID       string      `json:"id"`
	Selected bool        `json:"selected"`
	Cells    []FrameCell `json:"cells"`
}

// FrameCell is one rendered cell.
type FrameCell struct {
	Column   string       `json:"column"`
	Text     string       `json:"text"`
	Checked  bool         `json:"checked,omitempty"`
	Missing  bool         `json:"missing,omitempty"`
	Flash    bool         `json:"flash,omitempty"`
	InFlight bool         `json:"in_flight,omitempty"`
	Failed   string       `json:"failed,omitempty"`
	Editor   *FrameEditor `json:"editor,omitempty"`
}

// FrameEditor is the control of a cell in Editing.
type FrameEditor struct {
	Control          string             `json:"control"`
	Seed             string             `json:"seed,omitempty"`
	Options          []string           `json:"options,omitempty"`
	Selected         []schema.Reference `json:"selected,omitempty"`
	Hint             string             `json:"hint,omitempty"`
	SelectAllOnFocus bool               `json:"select_all_on_focus,omitempty"`
	CommitOnBlur     bool               `json:"commit_on_blur,omitempty"`
}

// Frame renders the current state. Before load it only carries the load
// status.
func (v *View) Frame() Frame {
	f := Frame{
		Schema:  v.cfg.Schema,
		Entity:  v.cfg.Entity,
		Filter:  v.cfg.Filter,
		Loaded:  v.table != nil,
		Loading: v.loading,
	}
	if v.loadErr != nil {
		f.Error = v.loadErr.Error()
	}
	if v.table == nil {
		return f
	}

	cols := v.table.VisibleColumns()
	f.Columns = make([]FrameColumn, len(cols))
	for i, c := range cols {
		fc := FrameColumn{ID: c.ID, Header: c.Header, Kind: c.Kind.String(), Width: c.Width, Resizable: c.Resizable}
		if c.Kind == grid.KindField {
			fc.Type = c.Field.Type.String()
		}
		f.Columns[i] = fc
	}
	f.TotalWidth = v.table.TotalWidth()
	f.AllSelected = v.table.AllSelected()

	f.Rows = make([]FrameRow, v.table.Len())
	for i, row := range v.table.Rows() {
		id := row.ID().String()
		fr := FrameRow{ID: id, Selected: v.table.IsSelected(i), Cells: make([]FrameCell, 0, len(cols))}
		for _, c := range cols {
			fr.Cells = append(fr.Cells, v.renderCell(i, id, row, c))
		}
		f.Rows[i] = fr
	}
	if m, ok := v.menu.Current(); ok {
		f.Menu = &m
	}
	return f
}

func (v *View) renderCell(i int, id string, row schema.Row, c grid.Column) FrameCell {
	fc := FrameCell{Column: c.ID}
	switch c.Kind {
	case grid.KindSelect:
		fc.Checked = v.table.IsSelected(i)
		return fc
	case grid.KindAdd:
		return fc
	}

	strategy, rctx := v.registry.ForField(v.table.Snapshot(), v.table.Entity(), c.ID)
	value := row[c.ID]
	disp := strategy.Display(value, rctx)
	fc.Text, fc.Checked, fc.Missing = disp.Text, disp.Checked, disp.Missing

	k := cell.Key{RowID: id, ColumnID: c.ID}
	fc.Flash = v.sync.Flashing(k)
	fc.InFlight = v.sync.InFlight(k)
	if err := v.sync.Failed(k); err != nil {
		fc.Failed = err.Error()
	}
	if ed, ok := v.cells.Editor(k); ok {
		fe := &FrameEditor{
			Control:          ed.Control.String(),
			Seed:             ed.Seed,
			Options:          ed.Options,
			Selected:         ed.Selected,
			SelectAllOnFocus: ed.SelectAllOnFocus,
			CommitOnBlur:     ed.CommitOnBlur,
		}
		if c.Field.Type.References() {
			fe.Hint = autocomplete.NoOptionsMessage(autocomplete.CandidatesOf(rctx.Field))
		}
		fc.Editor = fe
	}
	return fc
}
