// Package updater applies committed cell values optimistically and persists
// them to the record service.
//
// Every commit is one independent /update request. There is no coalescing,
// retry or ordering between requests; acknowledgements may arrive in any
// order. A per-cell sequence number keeps a late acknowledgement from
// clearing the failure marker of, or rolling back, a newer write.
package updater

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/cell"
	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/loop"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// DefaultFlash is how long an acknowledged cell stays highlighted.
const DefaultFlash = 1000 * time.Millisecond

// Writer persists field values.
type Writer interface {
	Update(ctx context.Context, req railgun.UpdateRequest) error
}

// Context names the record set a commit belongs to.
type Context struct {
	Schema string
	Entity string
}

// Synchronizer owns the write path of one table. All methods must be called
// on the table's loop.
type Synchronizer struct {
	table    *grid.Table
	loop     loop.Loop
	writer   Writer
	logger   *zap.Logger
	flash    time.Duration
	rollback bool
	notify   func()
	report   func(Result)

	seq      map[cell.Key]uint64
	inflight map[cell.Key]int
	flashing map[cell.Key]uint64
	failed   map[cell.Key]error
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger for failed writes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithFlash overrides the acknowledgement duration.
func WithFlash(d time.Duration) Option {
	return func(s *Synchronizer) { s.flash = d }
}

// WithRollback reverts the optimistic value when its write fails and the
// cell still shows that value.
func WithRollback(enabled bool) Option {
	return func(s *Synchronizer) { s.rollback = enabled }
}

// WithObserver registers fn to run after every visible state change.
func WithObserver(fn func()) Option {
	return func(s *Synchronizer) { s.notify = fn }
}

// WithResults registers fn to receive the outcome of every write.
func WithResults(fn func(Result)) Option {
	return func(s *Synchronizer) { s.report = fn }
}

// Result is the outcome of one write.
type Result struct {
	Entity string
	RowID  schema.ID
	Field  string
	Value  any
	Seq    uint64
	// Stale is set when a newer write to the same cell was issued first.
	Stale bool
	Err   error
}

// New creates a synchronizer for table.
func New(table *grid.Table, l loop.Loop, w Writer, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		table:    table,
		loop:     l,
		writer:   w,
		logger:   zap.NewNop(),
		flash:    DefaultFlash,
		notify:   func() {},
		report:   func(Result) {},
		seq:      make(map[cell.Key]uint64),
		inflight: make(map[cell.Key]int),
		flashing: make(map[cell.Key]uint64),
		failed:   make(map[cell.Key]error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Commit applies value to the table immediately and issues the remote
// write. The caller has already ruled out unchanged values.
func (s *Synchronizer) Commit(rowID schema.ID, field string, value any, ctx Context) error {
	i, ok := s.table.RowIndex(rowID)
	if !ok {
		return fmt.Errorf("%w: no row with uid '%s'", grid.ErrRowOutOfRange, rowID)
	}
	prev, err := s.table.Set(i, field, value)
	if err != nil {
		return err
	}

	key := cell.Key{RowID: rowID.String(), ColumnID: field}
	s.seq[key]++
	n := s.seq[key]
	s.inflight[key]++
	delete(s.failed, key)
	s.notify()

	req := railgun.UpdateRequest{
		Schema:   ctx.Schema,
		Entity:   ctx.Entity,
		EntityID: rowID,
		Data:     map[string]any{field: value},
	}
	w := write{key: key, rowID: rowID, seq: n, prev: prev, value: value, entity: ctx.Entity}
	s.loop.Go(func(c context.Context) func() {
		err := s.writer.Update(c, req)
		return func() { s.settle(w, err) }
	})
	return nil
}

// write is one issued update awaiting its acknowledgement.
type write struct {
	key    cell.Key
	rowID  schema.ID
	seq    uint64
	prev   any
	value  any
	entity string
}

func (s *Synchronizer) settle(w write, err error) {
	key, n := w.key, w.seq
	s.inflight[key]--
	if s.inflight[key] <= 0 {
		delete(s.inflight, key)
	}
	latest := n == s.seq[key]
	s.report(Result{
		Entity: w.entity,
		RowID:  w.rowID,
		Field:  key.ColumnID,
		Value:  w.value,
		Seq:    n,
		Stale:  !latest,
		Err:    err,
	})

	if err == nil {
		if !latest {
			s.notify()
			return
		}
		s.flashing[key] = n
		s.loop.After(s.flash, func() {
			if s.flashing[key] == n {
				delete(s.flashing, key)
				s.notify()
			}
		})
		s.notify()
		return
	}

	s.logger.Warn("update failed",
		zap.String("entity", w.entity),
		zap.String("uid", w.rowID.String()),
		zap.String("field", key.ColumnID),
		zap.Uint64("seq", n),
		zap.Bool("stale", !latest),
		zap.Bool("transport", railgun.IsTransport(err)),
		zap.Error(err),
	)
	if !latest {
		return
	}
	s.failed[key] = err
	if s.rollback {
		s.revert(key, w.rowID, w.prev, w.value)
	}
	s.notify()
}

func (s *Synchronizer) revert(key cell.Key, rowID schema.ID, prev, value any) {
	i, ok := s.table.RowIndex(rowID)
	if !ok {
		return
	}
	current, err := s.table.Value(i, key.ColumnID)
	if err != nil || !schema.Equal(current, value) {
		return
	}
	if _, err := s.table.Set(i, key.ColumnID, prev); err != nil {
		s.logger.Error("rollback failed", zap.String("cell", key.String()), zap.Error(err))
	}
}

// Flashing reports whether the cell is showing a success acknowledgement.
func (s *Synchronizer) Flashing(k cell.Key) bool {
	_, ok := s.flashing[k]
	return ok
}

// Failed returns the error of the cell's latest write, or nil.
func (s *Synchronizer) Failed(k cell.Key) error {
	return s.failed[k]
}

// InFlight reports whether the cell has unacknowledged writes.
func (s *Synchronizer) InFlight(k cell.Key) bool {
	return s.inflight[k] > 0
}
