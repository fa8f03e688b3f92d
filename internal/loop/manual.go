package loop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Loop for tests. Nothing runs until the test
// asks: Flush runs posted callbacks, Complete runs one piece of pending
// work, Advance moves the virtual clock and fires due timers.
type Manual struct {
	mu      sync.Mutex
	posted  []func()
	pending []func(ctx context.Context) func()
	timers  []manualTimer
	now     time.Duration
	seq     int
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

// NewManual returns an idle manual loop at virtual time zero.
func NewManual() *Manual { return &Manual{} }

// Post queues fn until the next Flush.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
}

// Go queues work until Complete or CompleteAll.
func (m *Manual) Go(work func(ctx context.Context) func()) {
	m.mu.Lock()
	m.pending = append(m.pending, work)
	m.mu.Unlock()
}

// After registers fn to fire when the clock reaches now+d.
func (m *Manual) After(d time.Duration, fn func()) {
	m.mu.Lock()
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now + d, seq: m.seq, fn: fn})
	m.mu.Unlock()
}

// Pending returns the number of work items not yet completed.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Timers returns the number of timers not yet fired.
func (m *Manual) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Flush runs posted callbacks, including ones posted while flushing.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
	}
}

// Complete runs pending work item i (0 is the oldest) on the calling
// goroutine, then runs its callback and flushes. It returns false when no
// such item exists.
func (m *Manual) Complete(i int) bool {
	m.mu.Lock()
	if i < 0 || i >= len(m.pending) {
		m.mu.Unlock()
		return false
	}
	work := m.pending[i]
	m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
	m.mu.Unlock()

	if cb := work(context.Background()); cb != nil {
		cb()
	}
	m.Flush()
	return true
}

// CompleteAll completes pending work oldest first until none remains.
func (m *Manual) CompleteAll() {
	m.Flush()
	for m.Complete(0) {
	}
}

// Advance moves the clock by d and fires every timer that falls due, in
// deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(a, b int) bool {
			if m.timers[a].at != m.timers[b].at {
				return m.timers[a].at < m.timers[b].at
			}
			return m.timers[a].seq < m.timers[b].seq
		})
		if len(m.timers) == 0 || m.timers[0].at > target {
			m.now = target
			m.mu.Unlock()
			m.Flush()
			return
		}
		t := m.timers[0]
		m.timers = m.timers[1:]
		m.now = t.at
		m.mu.Unlock()
		t.fn()
		m.Flush()
	}
}
