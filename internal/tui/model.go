// Package tui is a terminal front end for a grid view.
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/render"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/view"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	cursorStyle  = lipgloss.NewStyle().Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15"))
	flashStyle   = lipgloss.NewStyle().Background(lipgloss.Color("2")).Foreground(lipgloss.Color("0"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pendingStyle = lipgloss.NewStyle().Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	menuStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// resizeStep is the width change of one < or > press.
const resizeStep = 20

// editing is the cell currently in Editing.
type editing struct {
	row, column string
	control     render.Control

	options []string // select
	choice  int

	picked []schema.Reference // multi-select
	query  string
	found  []autocomplete.Option
	cursor int
}

// Model is the bubbletea model over one view. Its loop must be the loop the
// view was built with.
type Model struct {
	view  *view.View
	loop  *Loop
	keys  keyMap
	help  help.Model
	input textinput.Model

	row, col   int
	edit       *editing
	filtering  bool
	menuCursor int
	status     string
	width      int
	height     int
}

// New returns a model for v.
func New(v *view.View, l *Loop) *Model {
	in := textinput.New()
	in.Prompt = ""
	in.Cursor.SetMode(cursor.CursorStatic)
	return &Model{view: v, loop: l, keys: defaultKeys(), help: help.New(), input: in}
}

// Status returns the last message shown in the status line.
func (m *Model) Status() string { return m.status }

// Cursor returns the focused row and visible column index.
func (m *Model) Cursor() (row, col int) { return m.row, m.col }

// Editing reports whether a cell is in Editing.
func (m *Model) Editing() bool { return m.edit != nil }

func (m *Model) Init() tea.Cmd {
	m.view.Load(m.loaded)
	return m.loop.Cmd()
}

func (m *Model) loaded(err error) {
	if err != nil {
		m.status = "load failed: " + err.Error()
		return
	}
	m.status = ""
	m.clamp(m.view.Frame())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case callbackMsg:
		msg()
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case tea.KeyMsg:
		cmd = m.key(msg)
	}
	return m, tea.Batch(cmd, m.loop.Cmd())
}

func (m *Model) fail(err error) bool {
	if err == nil {
		return false
	}
	m.status = err.Error()
	return true
}

func (m *Model) clamp(f view.Frame) {
	m.row = min(m.row, max(len(f.Rows)-1, 0))
	m.col = min(m.col, max(len(f.Columns)-1, 0))
}

func (m *Model) key(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	f := m.view.Frame()
	switch {
	case f.Menu != nil:
		m.menuKey(msg, f)
		return nil
	case m.edit != nil:
		return m.editKey(msg)
	case m.filtering:
		return m.filterKey(msg)
	}
	return m.gridKey(msg, f)
}

func (m *Model) filterKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.endFilter()
	case key.Matches(msg, m.keys.Activate):
		expr := strings.TrimSpace(m.input.Value())
		if m.fail(m.view.SetFilter(expr, m.loaded)) {
			return nil
		}
		m.endFilter()
		m.row = 0
		m.status = "filtering"
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) endFilter() {
	m.filtering = false
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) gridKey(msg tea.KeyMsg, f view.Frame) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Reload):
		m.status = "reloading"
		cfg := m.view.Config()
		m.view.Reload(cfg.Schema, cfg.Entity, m.loaded)
		return nil
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.input.SetValue(m.view.Config().Filter)
		m.input.CursorEnd()
		return m.input.Focus()
	}
	if !f.Loaded || len(f.Columns) == 0 {
		return nil
	}
	m.clamp(f)
	col := f.Columns[m.col]

	switch {
	case key.Matches(msg, m.keys.Up):
		m.row = max(m.row-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.row = min(m.row+1, max(len(f.Rows)-1, 0))
	case key.Matches(msg, m.keys.Left):
		m.col = max(m.col-1, 0)
	case key.Matches(msg, m.keys.Right):
		m.col = min(m.col+1, len(f.Columns)-1)
	case key.Matches(msg, m.keys.SelectAll):
		m.fail(m.view.ToggleAll())
	case key.Matches(msg, m.keys.Narrow):
		m.fail(m.view.Resize(col.ID, max(col.Width-resizeStep, resizeStep)))
	case key.Matches(msg, m.keys.Widen):
		m.fail(m.view.Resize(col.ID, col.Width+resizeStep))
	case key.Matches(msg, m.keys.Menu):
		if _, err := m.view.OpenHeaderMenu(col.ID); !m.fail(err) {
			m.menuCursor = 0
		}
	case key.Matches(msg, m.keys.Toggle):
		m.toggle(f, col)
	case key.Matches(msg, m.keys.Activate):
		if col.Kind == "field" && col.Type != schema.FieldBool.String() {
			m.activate(f, col)
		} else {
			m.toggle(f, col)
		}
	}
	return nil
}

func (m *Model) toggle(f view.Frame, col view.FrameColumn) {
	if len(f.Rows) == 0 {
		return
	}
	r := f.Rows[m.row]
	switch {
	case col.Kind == "select":
		m.fail(m.view.ToggleRow(r.ID))
	case col.Type == schema.FieldBool.String():
		if _, err := m.view.Toggle(r.ID, col.ID, !r.Cells[m.col].Checked); !m.fail(err) {
			m.status = ""
		}
	}
}

func (m *Model) activate(f view.Frame, col view.FrameColumn) {
	if len(f.Rows) == 0 {
		return
	}
	rowID := f.Rows[m.row].ID
	ed, err := m.view.Activate(rowID, col.ID)
	if m.fail(err) {
		return
	}
	e := &editing{row: rowID, column: col.ID, control: ed.Control}
	switch ed.Control {
	case render.ControlText:
		m.input.SetValue(ed.Seed)
		m.input.CursorEnd()
		m.input.Focus()
	case render.ControlSelect:
		e.options = ed.Options
		e.choice = max(slices.Index(ed.Options, ed.Seed), 0)
	case render.ControlMultiSelect:
		e.picked = slices.Clone(ed.Selected)
		m.input.SetValue("")
		if fe := m.view.Frame().Rows[m.row].Cells[m.col].Editor; fe != nil {
			m.input.Placeholder = fe.Hint
		}
		m.input.Focus()
	default:
		m.fail(m.view.Cancel(rowID, col.ID))
		return
	}
	m.edit = e
	m.status = ""
}

func (m *Model) endEdit() {
	m.edit = nil
	m.input.Blur()
	m.input.SetValue("")
	m.input.Placeholder = ""
}

// value is what the control currently holds.
func (m *Model) value() any {
	switch m.edit.control {
	case render.ControlSelect:
		if len(m.edit.options) == 0 {
			return ""
		}
		return m.edit.options[m.edit.choice]
	case render.ControlMultiSelect:
		return m.edit.picked
	default:
		return m.input.Value()
	}
}

func (m *Model) editKey(msg tea.KeyMsg) tea.Cmd {
	e := m.edit
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.fail(m.view.Cancel(e.row, e.column))
		m.endEdit()
		return nil
	case key.Matches(msg, m.keys.Blur):
		if _, err := m.view.Blur(e.row, e.column, m.value()); !m.fail(err) || !m.view.Editing(e.row, e.column) {
			m.endEdit()
		}
		return nil
	}

	switch e.control {
	case render.ControlSelect:
		switch {
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Left):
			e.choice = max(e.choice-1, 0)
		case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.Right):
			e.choice = min(e.choice+1, max(len(e.options)-1, 0))
		case key.Matches(msg, m.keys.Activate):
			m.confirm()
		}
		return nil
	case render.ControlMultiSelect:
		return m.multiKey(msg)
	}

	if key.Matches(msg, m.keys.Activate) {
		m.confirm()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) confirm() {
	e := m.edit
	out, err := m.view.Confirm(e.row, e.column, m.value())
	if m.fail(err) {
		if !m.view.Editing(e.row, e.column) {
			m.endEdit()
		}
		return
	}
	m.endEdit()
	if !out.Committed {
		m.status = "unchanged"
	}
}

func (m *Model) multiKey(msg tea.KeyMsg) tea.Cmd {
	e := m.edit
	switch msg.Type {
	case tea.KeyUp:
		e.cursor = max(e.cursor-1, 0)
		return nil
	case tea.KeyDown:
		e.cursor = min(e.cursor+1, max(len(e.found)-1, 0))
		return nil
	case tea.KeyEnter:
		if len(e.found) == 0 {
			m.confirm()
			return nil
		}
		pick := e.found[e.cursor].Value
		if !slices.ContainsFunc(e.picked, func(r schema.Reference) bool {
			return r.Type == pick.Type && r.UID.Equal(pick.UID)
		}) {
			e.picked = append(e.picked, pick)
		}
		e.found, e.cursor, e.query = nil, 0, ""
		m.input.SetValue("")
		return nil
	case tea.KeyBackspace:
		if m.input.Value() == "" && len(e.picked) > 0 {
			e.picked = e.picked[:len(e.picked)-1]
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if q := m.input.Value(); q != e.query {
		m.search(e, q)
	}
	return cmd
}

func (m *Model) search(e *editing, prefix string) {
	e.query = prefix
	err := m.view.Search(e.row, e.column, prefix, func(opts []autocomplete.Option) {
		if m.edit != e || e.query != prefix {
			return
		}
		e.found, e.cursor = opts, 0
	})
	m.fail(err)
}

func (m *Model) menuKey(msg tea.KeyMsg, f view.Frame) {
	switch {
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.view.CloseHeaderMenu()
	case key.Matches(msg, m.keys.Up):
		m.menuCursor = max(m.menuCursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.menuCursor = min(m.menuCursor+1, len(f.Menu.Items)-1)
	case key.Matches(msg, m.keys.Activate):
		item := f.Menu.Items[m.menuCursor]
		if !m.fail(m.view.ChooseHeaderMenu(item.ID)) {
			m.status = item.Label + ": " + f.Menu.Field.Name
		}
		m.clamp(m.view.Frame())
	}
}

// chars is the terminal width of a column.
func chars(c view.FrameColumn) int {
	switch c.Kind {
	case "select", "add":
		return 3
	}
	return max(c.Width/10, 3)
}

func fit(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		if w <= 1 {
			return string(r[:w])
		}
		return string(r[:w-1]) + "…"
	}
	return s + strings.Repeat(" ", w-len(r))
}

func (m *Model) View() string {
	f := m.view.Frame()
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf(" %s / %s", f.Schema, f.Entity)))
	if f.Filter != "" && !m.filtering {
		b.WriteString(dimStyle.Render("  where " + f.Filter))
	}
	b.WriteString("\n")
	switch {
	case f.Error != "":
		b.WriteString(failedStyle.Render(" " + f.Error))
		b.WriteString("\n")
	case !f.Loaded:
		b.WriteString(dimStyle.Render(" loading…"))
		b.WriteString("\n")
	}
	if f.Loaded {
		m.table(&b, f)
	}
	if f.Menu != nil {
		var items []string
		for i, it := range f.Menu.Items {
			line := "  " + it.Label
			if i == m.menuCursor {
				line = cursorStyle.Render("> " + it.Label)
			}
			items = append(items, line)
		}
		b.WriteString(menuStyle.Render(f.Menu.Field.Name + "\n" + strings.Join(items, "\n")))
		b.WriteString("\n")
	}
	if m.edit != nil {
		m.editorPanel(&b)
	}
	if m.filtering {
		b.WriteString(" filter: " + m.input.View() + "\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(" " + m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) table(b *strings.Builder, f view.Frame) {
	for i, c := range f.Columns {
		header := c.Header
		if c.Kind == "select" {
			header = "[ ]"
			if f.AllSelected {
				header = "[x]"
			}
		}
		b.WriteString(headerStyle.Render(" " + fit(header, chars(c)) + " "))
		if i < len(f.Columns)-1 {
			b.WriteString(dimStyle.Render("│"))
		}
	}
	b.WriteString("\n")

	rows := f.Rows
	start := 0
	if visible := m.height - 8; visible > 0 && m.row >= visible {
		start = m.row - visible + 1
		rows = rows[start:min(start+visible, len(rows))]
	} else if visible > 0 && len(rows) > visible {
		rows = rows[:visible]
	}
	for ri, r := range rows {
		ri += start
		for ci, cell := range r.Cells {
			c := f.Columns[ci]
			w := chars(c)
			text := cell.Text
			switch {
			case c.Kind == "select":
				text = "[ ]"
				if cell.Checked {
					text = "[x]"
				}
			case cell.Editor != nil && m.edit != nil && m.edit.row == r.ID && m.edit.column == c.ID:
				text = m.editingText()
			}
			s := " " + fit(text, w) + " "
			switch {
			case ri == m.row && ci == m.col:
				s = cursorStyle.Render(s)
			case cell.Failed != "":
				s = failedStyle.Render(s)
			case cell.Flash:
				s = flashStyle.Render(s)
			case cell.Missing:
				s = dimStyle.Render(s)
			case cell.InFlight:
				s = pendingStyle.Render(s)
			}
			b.WriteString(s)
			if ci < len(r.Cells)-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString("\n")
	}
	if len(f.Rows) == 0 {
		b.WriteString(dimStyle.Render(" no records"))
		b.WriteString("\n")
	}
}

func (m *Model) editingText() string {
	if m.edit.control == render.ControlSelect {
		return "‹" + schema.Text(m.value()) + "›"
	}
	return m.input.Value() + "_"
}

func (m *Model) editorPanel(b *strings.Builder) {
	e := m.edit
	switch e.control {
	case render.ControlSelect:
		for i, o := range e.options {
			line := "  " + o
			if i == e.choice {
				line = cursorStyle.Render("> " + o)
			}
			b.WriteString(line + "\n")
		}
	case render.ControlMultiSelect:
		labels := make([]string, len(e.picked))
		for i, r := range e.picked {
			labels[i] = r.Label()
		}
		b.WriteString(" selected: " + strings.Join(labels, ", ") + "\n")
		b.WriteString(" search: " + m.input.View() + "\n")
		for i, o := range e.found {
			line := fmt.Sprintf("  %s (%s)", o.Label, o.Value.Type)
			if i == e.cursor {
				line = cursorStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	default:
		b.WriteString(" " + m.input.View() + "\n")
	}
}
