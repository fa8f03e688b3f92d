// Package headermenu implements the column-header context menu.
//
// The menu only resolves the field behind a column and hands it to the
// field-management dialogs. It never changes a field definition itself.
package headermenu

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/schema"
)

var (
	// ErrNoMenu is returned for columns without a header menu.
	ErrNoMenu = errors.New("column has no header menu")
	// ErrNotOpen is returned when choosing with no menu open.
	ErrNotOpen = errors.New("no header menu open")
)

// Menu item ids.
const (
	ItemEditField = "edit_field"
	ItemHideField = "hide_field"
)

// Item is one menu entry.
type Item struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var items = []Item{
	{ID: ItemEditField, Label: "Edit Field"},
	{ID: ItemHideField, Label: "Hide Field"},
}

// Menu is an open header menu.
type Menu struct {
	ColumnID string                 `json:"column_id"`
	Entity   string                 `json:"entity"`
	Field    schema.FieldDescriptor `json:"-"`
	Items    []Item                 `json:"items"`
}

// Dialogs are the external field-management collaborators.
type Dialogs interface {
	EditField(entity string, fd schema.FieldDescriptor) error
	HideField(entity string, fd schema.FieldDescriptor) error
}

// Handler tracks the open menu of one table.
type Handler struct {
	dialogs Dialogs
	open    *Menu
}

// New creates a handler delegating to dialogs.
func New(dialogs Dialogs) *Handler {
	return &Handler{dialogs: dialogs}
}

// Open resolves the field of columnID and opens its menu. The descriptor is
// looked up in the table's schema snapshot.
func (h *Handler) Open(t *grid.Table, columnID string) (Menu, error) {
	col, err := t.Column(columnID)
	if err != nil {
		return Menu{}, err
	}
	if col.Kind != grid.KindField {
		return Menu{}, fmt.Errorf("%w: '%s'", ErrNoMenu, columnID)
	}
	fd, err := t.Snapshot().Field(t.Entity(), columnID)
	if err != nil {
		return Menu{}, err
	}
	m := Menu{
		ColumnID: columnID,
		Entity:   t.Entity(),
		Field:    fd,
		Items:    append([]Item(nil), items...),
	}
	h.open = &m
	return m, nil
}

// Current returns the open menu.
func (h *Handler) Current() (Menu, bool) {
	if h.open == nil {
		return Menu{}, false
	}
	return *h.open, true
}

// Close dismisses the menu without action.
func (h *Handler) Close() { h.open = nil }

// Choose runs an item of the open menu and closes it.
func (h *Handler) Choose(itemID string) error {
	if h.open == nil {
		return ErrNotOpen
	}
	m := *h.open
	h.open = nil

	switch itemID {
	case ItemEditField:
		return h.dialogs.EditField(m.Entity, m.Field)
	case ItemHideField:
		return h.dialogs.HideField(m.Entity, m.Field)
	default:
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		msg := fmt.Sprintf("unknown menu item '%s'", itemID)
		if s := schema.DidYouMean(itemID, ids, 3); s != "" {
			msg += " (" + s + ")"
		}
		return errors.New(msg)
	}
}
