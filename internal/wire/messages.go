// Package wire defines the WebSocket protocol for grid sessions.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/view"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "load", "activate", "confirm", ... , "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// ReloadData is the payload for "reload" messages.
type ReloadData struct {
	Schema string `json:"schema"`
	Entity string `json:"entity"`
}

// FilterData is the payload for "filter" messages. An empty expression
// clears the filter.
type FilterData struct {
	Expr string `json:"expr"`
}

// CellData addresses one cell.
type CellData struct {
	Row    string `json:"row"`
	Column string `json:"column"`
}

// EditData is the payload for "confirm" and "blur" messages.
type EditData struct {
	CellData
	Value json.RawMessage `json:"value"`
}

// ToggleData is the payload for "toggle" messages.
type ToggleData struct {
	CellData
	Checked bool `json:"checked"`
}

// SearchData is the payload for "search" messages.
type SearchData struct {
	CellData
	Prefix string `json:"prefix"`
}

// RowData is the payload for "select_row" messages.
type RowData struct {
	Row string `json:"row"`
}

// ResizeData is the payload for "resize" messages.
type ResizeData struct {
	Column string `json:"column"`
	Width  int    `json:"width"`
}

// HideData is the payload for "hide" messages.
type HideData struct {
	Column string `json:"column"`
	Hidden bool   `json:"hidden"`
}

// HeaderMenuData is the payload for "header_menu" messages.
type HeaderMenuData struct {
	Column string `json:"column"`
}

// MenuActionData is the payload for "menu_action" messages. An empty item
// closes the menu.
type MenuActionData struct {
	Item string `json:"item"`
}

// CreateData is the payload for "create" messages: raw form inputs by field
// code.
type CreateData struct {
	Inputs map[string]string `json:"inputs"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "frame", "options", "menu", "dialog", "form", "created", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	Schema    string `json:"schema"`
	Entity    string `json:"entity"`
}

// OptionsData carries autocomplete results for a cell.
type OptionsData struct {
	Row     string                `json:"row"`
	Column  string                `json:"column"`
	Options []autocomplete.Option `json:"options"`
	Hint    string                `json:"hint,omitempty"`
}

// FormData describes the record-creation form.
type FormData struct {
	Fields []view.FormField `json:"fields"`
}

// CreatedData carries the created record, when the service returned one.
type CreatedData struct {
	Row schema.Row `json:"row,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
