package eventbus

import (
	"context"
	"sync"
)

// DefaultHistory is the number of events a History keeps by default.
const DefaultHistory = 500

// History keeps the most recent events in memory, oldest first.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []Event
}

// NewHistory creates a History holding at most limit events.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &History{limit: limit}
}

func (h *History) HandleEvent(_ context.Context, evt Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, evt)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]Event(nil), h.entries[over:]...)
	}
	return nil
}

// Query selects events from a History.
type Query struct {
	Session string
	Schema  string
	Entity  string
	// After returns only events with a greater ID.
	After string
	// FailedOnly drops successful writes.
	FailedOnly bool
	Limit      int
}

// Recent returns the newest events matching q, newest first.
func (h *History) Recent(q Query) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	out := []Event{}
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := h.entries[i]
		if q.Session != "" && e.Session != q.Session {
			continue
		}
		if q.Schema != "" && e.Schema != q.Schema {
			continue
		}
		if q.Entity != "" && e.Entity != q.Entity {
			continue
		}
		if q.After != "" && e.ID <= q.After {
			continue
		}
		if q.FailedOnly && !e.Failed() {
			continue
		}
		out = append(out, e)
	}
	return out
}
