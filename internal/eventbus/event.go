package eventbus

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types.
const (
	EditSaved     = "edit.saved"
	EditFailed    = "edit.failed"
	RecordCreated = "record.created"
	CreateFailed  = "record.create_failed"
)

// Event is the outcome of one write against the record service.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	At       time.Time `json:"at"`
	Session  string    `json:"session,omitempty"`
	Schema   string    `json:"schema"`
	Entity   string    `json:"entity"`
	RecordID string    `json:"record_id,omitempty"`
	Field    string    `json:"field,omitempty"`
	Value    any       `json:"value,omitempty"`
	// Stale is set when a newer write to the same cell was already issued.
	Stale bool   `json:"stale,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewEvent returns an event of the given type with a fresh ULID and timestamp.
// ULIDs sort by creation time.
func NewEvent(typ, schemaCode, entity string) Event {
	return Event{
		ID:     ulid.Make().String(),
		Type:   typ,
		At:     time.Now().UTC(),
		Schema: schemaCode,
		Entity: entity,
	}
}

// Failed reports whether the event records a rejected write.
func (e Event) Failed() bool {
	return e.Type == EditFailed || e.Type == CreateFailed
}
