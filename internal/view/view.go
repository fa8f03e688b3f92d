// Package view composes the grid engine for one (schema, entity) view.
//
// A View is single-threaded: every method must be called on its loop, and
// every asynchronous completion is delivered back on that loop. Nothing is
// rendered or editable until the schema snapshot and the first page of rows
// have loaded.
package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/cell"
	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/filterql"
	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/headermenu"
	"github.com/matthewbaird/railgrid/internal/loop"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/render"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/updater"
)

// DefaultPageSize is the number of rows requested on load.
const DefaultPageSize = 100

var (
	// ErrNotLoaded is returned by gestures issued before the view loaded.
	ErrNotLoaded = errors.New("view not loaded")
	// ErrNotSearchable is returned when searching a field without
	// reference targets.
	ErrNotSearchable = errors.New("field is not searchable")
	// ErrNoDialog is returned by the default dialogs for field editing.
	ErrNoDialog = errors.New("field dialog not available")
)

// Backend is the remote record service.
type Backend interface {
	autocomplete.Reader
	updater.Writer
	Telescope(ctx context.Context, schemaCode string) (*schema.Snapshot, error)
	Create(ctx context.Context, req railgun.CreateRequest) (schema.Row, error)
}

// Config selects the record set and tunes the engine.
type Config struct {
	Schema      string
	Entity      string
	Filter      string // filterql expression applied to the row read
	PageSize    int
	SearchLimit int
	Flash       time.Duration
	Rollback    bool
}

// View is one editable grid.
type View struct {
	cfg      Config
	loop     loop.Loop
	backend  Backend
	registry *render.Registry
	resolver *autocomplete.Resolver
	dialogs  headermenu.Dialogs
	logger   *zap.Logger
	observer func()
	events   Publisher

	gen     uint64
	loading bool
	loadErr error
	table   *grid.Table
	cells   *cell.Machine
	sync    *updater.Synchronizer
	menu    *headermenu.Handler
}

// Publisher receives write outcomes.
type Publisher interface {
	Publish(evt eventbus.Event)
}

type noPublisher struct{}

func (noPublisher) Publish(eventbus.Event) {}

// Option configures a View.
type Option func(*View)

// WithLogger sets the view's logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *View) { v.logger = l }
}

// WithRegistry replaces the default renderer registry.
func WithRegistry(r *render.Registry) Option {
	return func(v *View) { v.registry = r }
}

// WithDialogs sets the field-management dialogs opened from header menus.
func WithDialogs(d headermenu.Dialogs) Option {
	return func(v *View) { v.dialogs = d }
}

// WithObserver registers fn to run after every state change.
func WithObserver(fn func()) Option {
	return func(v *View) { v.observer = fn }
}

// WithPublisher sends an event for every settled update and create.
func WithPublisher(p Publisher) Option {
	return func(v *View) { v.events = p }
}

// New creates an unloaded view.
func New(cfg Config, l loop.Loop, backend Backend, opts ...Option) *View {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Flash <= 0 {
		cfg.Flash = updater.DefaultFlash
	}
	v := &View{
		cfg:      cfg,
		loop:     l,
		backend:  backend,
		registry: render.NewRegistry(),
		logger:   zap.NewNop(),
		observer: func() {},
		events:   noPublisher{},
	}
	for _, o := range opts {
		o(v)
	}
	if v.dialogs == nil {
		v.dialogs = localDialogs{v}
	}
	v.resolver = autocomplete.New(backend,
		autocomplete.WithLimit(cfg.SearchLimit),
		autocomplete.WithLogger(v.logger),
	)
	return v
}

func (v *View) notify() { v.observer() }

// Config returns the active configuration.
func (v *View) Config() Config { return v.cfg }

// Loaded reports whether the grid is ready.
func (v *View) Loaded() bool { return v.table != nil }

// Loading reports whether a load is in progress.
func (v *View) Loading() bool { return v.loading }

// Err returns the error of the last load, if any.
func (v *View) Err() error { return v.loadErr }

// Table returns the loaded table, or nil.
func (v *View) Table() *grid.Table { return v.table }

// Load fetches the schema snapshot and the first page of rows, then builds
// the grid. done, if non-nil, runs on the loop once the load settles.
func (v *View) Load(done func(error)) {
	v.gen++
	gen := v.gen
	cfg := v.cfg
	v.loading = true
	v.loadErr = nil
	v.notify()

	v.loop.Go(func(ctx context.Context) func() {
		snap, rows, err := v.fetch(ctx, cfg)
		return func() {
			if gen != v.gen {
				return
			}
			v.loading = false
			if err == nil {
				err = v.install(snap, rows)
			}
			if err != nil {
				v.loadErr = err
				v.logger.Error("load failed",
					zap.String("schema", cfg.Schema),
					zap.String("entity", cfg.Entity),
					zap.Error(err),
				)
			}
			v.notify()
			if done != nil {
				done(err)
			}
		}
	})
}

func (v *View) fetch(ctx context.Context, cfg Config) (*schema.Snapshot, []schema.Row, error) {
	snap, err := v.backend.Telescope(ctx, cfg.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("telescope: %w", err)
	}
	e, err := snap.Entity(cfg.Entity)
	if err != nil {
		return nil, nil, err
	}
	filter, err := filterql.Parse(cfg.Filter)
	if err == nil {
		err = filterql.Check(filter, e)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("filter: %w", err)
	}
	rows, err := v.backend.Read(ctx, snap, cfg.Entity, railgun.ReadRequest{
		ReturnFields: e.FieldCodes(),
		Filters:      filter,
		Pagination:   cfg.PageSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}
	return snap, rows, nil
}

func (v *View) install(snap *schema.Snapshot, rows []schema.Row) error {
	table, err := grid.Build(snap, v.cfg.Entity, rows)
	if err != nil {
		return err
	}
	v.table = table
	v.cells = cell.NewMachine(v.commit)
	v.sync = updater.New(table, v.loop, v.backend,
		updater.WithLogger(v.logger),
		updater.WithFlash(v.cfg.Flash),
		updater.WithRollback(v.cfg.Rollback),
		updater.WithObserver(v.notify),
		updater.WithResults(v.published(snap.Code())),
	)
	v.menu = headermenu.New(v.dialogs)
	return nil
}

// published turns write results into events. schemaCode is fixed when the
// grid is built so late results keep their original schema after a reload.
func (v *View) published(schemaCode string) func(updater.Result) {
	return func(r updater.Result) {
		typ := eventbus.EditSaved
		if r.Err != nil {
			typ = eventbus.EditFailed
		}
		evt := eventbus.NewEvent(typ, schemaCode, r.Entity)
		evt.RecordID = r.RowID.String()
		evt.Field = r.Field
		evt.Value = r.Value
		evt.Stale = r.Stale
		if r.Err != nil {
			evt.Error = r.Err.Error()
		}
		v.events.Publish(evt)
	}
}

// SetFilter replaces the row filter and reloads. A malformed expression,
// or one naming fields the loaded entity lacks, is rejected without
// touching the grid.
func (v *View) SetFilter(expr string, done func(error)) error {
	f, err := filterql.Parse(expr)
	if err != nil {
		return err
	}
	if v.table != nil {
		e, err := v.table.Snapshot().Entity(v.table.Entity())
		if err != nil {
			return err
		}
		if err := filterql.Check(f, e); err != nil {
			return err
		}
	}
	v.cfg.Filter = expr
	v.Load(done)
	return nil
}

// Reload switches the view to another record set. Switching drops the row
// filter. The previous grid is discarded and a fresh snapshot is fetched; results of any load still in
// flight are dropped.
func (v *View) Reload(schemaCode, entity string, done func(error)) {
	if schemaCode != v.cfg.Schema || entity != v.cfg.Entity {
		v.cfg.Filter = ""
	}
	v.cfg.Schema = schemaCode
	v.cfg.Entity = entity
	v.table = nil
	v.cells = nil
	v.sync = nil
	v.menu = nil
	v.Load(done)
}

func (v *View) commit(k cell.Key, value any) error {
	i, id, err := v.row(k.RowID)
	if err == nil {
		err = v.sync.Commit(id, k.ColumnID, value, updater.Context{Schema: v.cfg.Schema, Entity: v.cfg.Entity})
	}
	if err != nil {
		v.logger.Error("commit failed", zap.String("cell", k.String()), zap.Int("row", i), zap.Error(err))
	}
	return err
}

func (v *View) row(rowID string) (int, schema.ID, error) {
	if v.table == nil {
		return 0, schema.ID{}, ErrNotLoaded
	}
	i, ok := v.table.RowIndex(schema.StringID(rowID))
	if !ok {
		return 0, schema.ID{}, fmt.Errorf("%w: no row with uid '%s'", grid.ErrRowOutOfRange, rowID)
	}
	row, _ := v.table.Row(i)
	return i, row.ID(), nil
}

// target resolves a field cell and its renderer.
func (v *View) target(rowID, columnID string) (cell.Key, render.Strategy, render.Context, any, error) {
	i, id, err := v.row(rowID)
	if err != nil {
		return cell.Key{}, nil, render.Context{}, nil, err
	}
	col, err := v.table.Column(columnID)
	if err != nil {
		return cell.Key{}, nil, render.Context{}, nil, err
	}
	if col.Kind != grid.KindField {
		return cell.Key{}, nil, render.Context{}, nil, fmt.Errorf("%w: '%s'", grid.ErrNotFieldColumn, columnID)
	}
	current, err := v.table.Value(i, columnID)
	if err != nil {
		return cell.Key{}, nil, render.Context{}, nil, err
	}
	strategy, rctx := v.registry.ForField(v.table.Snapshot(), v.table.Entity(), columnID)
	return cell.Key{RowID: id.String(), ColumnID: columnID}, strategy, rctx, current, nil
}

// Activate puts a cell into Editing and returns its edit control.
func (v *View) Activate(rowID, columnID string) (render.Editor, error) {
	k, strategy, rctx, current, err := v.target(rowID, columnID)
	if err != nil {
		return render.Editor{}, err
	}
	ed, err := v.cells.Activate(k, strategy, rctx, current)
	if err != nil {
		return render.Editor{}, err
	}
	v.notify()
	return ed, nil
}

// Cancel leaves Editing without committing.
func (v *View) Cancel(rowID, columnID string) error {
	if v.table == nil {
		return ErrNotLoaded
	}
	if err := v.cells.Cancel(cell.Key{RowID: rowID, ColumnID: columnID}); err != nil {
		return err
	}
	v.notify()
	return nil
}

// Confirm commits input unless it leaves the value unchanged.
func (v *View) Confirm(rowID, columnID string, input any) (cell.Outcome, error) {
	if v.table == nil {
		return cell.Outcome{}, ErrNotLoaded
	}
	k := cell.Key{RowID: rowID, ColumnID: columnID}
	out, err := v.cells.Confirm(k, input)
	if err != nil {
		if !v.cells.Editing(k) {
			v.notify()
		}
		return out, err
	}
	v.notify()
	return out, nil
}

// Editing reports whether the cell is in an edit session.
func (v *View) Editing(rowID, columnID string) bool {
	return v.cells != nil && v.cells.Editing(cell.Key{RowID: rowID, ColumnID: columnID})
}

// Blur handles loss of focus on an editing cell.
func (v *View) Blur(rowID, columnID string, input any) (cell.Outcome, error) {
	if v.table == nil {
		return cell.Outcome{}, ErrNotLoaded
	}
	k := cell.Key{RowID: rowID, ColumnID: columnID}
	out, err := v.cells.Blur(k, input)
	if err != nil {
		if !v.cells.Editing(k) {
			v.notify()
		}
		return out, err
	}
	v.notify()
	return out, nil
}

// Toggle commits a checkbox cell from Display.
func (v *View) Toggle(rowID, columnID string, checked bool) (cell.Outcome, error) {
	k, strategy, rctx, current, err := v.target(rowID, columnID)
	if err != nil {
		return cell.Outcome{}, err
	}
	out, err := v.cells.Toggle(k, strategy, rctx, current, checked)
	if err != nil {
		return out, err
	}
	v.notify()
	return out, nil
}

// Search looks up reference options for a cell. done runs on the loop with
// the concatenated options of every candidate type. An empty prefix
// completes immediately with no options.
func (v *View) Search(rowID, columnID, prefix string, done func([]autocomplete.Option)) error {
	_, _, rctx, _, err := v.target(rowID, columnID)
	if err != nil {
		return err
	}
	candidates := autocomplete.CandidatesOf(rctx.Field)
	if !rctx.Field.Type.References() || len(candidates) == 0 {
		return fmt.Errorf("%w: '%s' (%s)", ErrNotSearchable, columnID, rctx.Field.Type)
	}
	if prefix == "" {
		v.loop.Post(func() { done(nil) })
		return nil
	}
	gen := v.gen
	snap := rctx.Snapshot
	v.loop.Go(func(ctx context.Context) func() {
		opts := v.resolver.Search(ctx, snap, candidates, prefix)
		return func() {
			if gen != v.gen {
				return
			}
			done(opts)
		}
	})
	return nil
}

// ToggleRow flips the selection of one row.
func (v *View) ToggleRow(rowID string) error {
	i, _, err := v.row(rowID)
	if err != nil {
		return err
	}
	if err := v.table.ToggleRow(i); err != nil {
		return err
	}
	v.notify()
	return nil
}

// ToggleAll selects every row, or clears the selection when all rows are
// already selected.
func (v *View) ToggleAll() error {
	if v.table == nil {
		return ErrNotLoaded
	}
	v.table.ToggleAll()
	v.notify()
	return nil
}

// Resize sets a column width.
func (v *View) Resize(columnID string, width int) error {
	if v.table == nil {
		return ErrNotLoaded
	}
	if err := v.table.Resize(columnID, width); err != nil {
		return err
	}
	v.notify()
	return nil
}

// SetHidden shows or hides a field column.
func (v *View) SetHidden(columnID string, hidden bool) error {
	if v.table == nil {
		return ErrNotLoaded
	}
	if err := v.table.SetHidden(columnID, hidden); err != nil {
		return err
	}
	v.notify()
	return nil
}

// OpenHeaderMenu opens the context menu of a field column.
func (v *View) OpenHeaderMenu(columnID string) (headermenu.Menu, error) {
	if v.table == nil {
		return headermenu.Menu{}, ErrNotLoaded
	}
	m, err := v.menu.Open(v.table, columnID)
	if err != nil {
		return m, err
	}
	v.notify()
	return m, nil
}

// ChooseHeaderMenu runs an item of the open header menu.
func (v *View) ChooseHeaderMenu(itemID string) error {
	if v.table == nil {
		return ErrNotLoaded
	}
	err := v.menu.Choose(itemID)
	v.notify()
	return err
}

// CloseHeaderMenu dismisses the open header menu.
func (v *View) CloseHeaderMenu() {
	if v.menu == nil {
		return
	}
	v.menu.Close()
	v.notify()
}

// localDialogs serve views without external field dialogs: hiding is
// applied to the grid, editing is unavailable.
type localDialogs struct{ v *View }

func (d localDialogs) EditField(_ string, fd schema.FieldDescriptor) error {
	return fmt.Errorf("%w: edit '%s'", ErrNoDialog, fd.Code)
}

func (d localDialogs) HideField(_ string, fd schema.FieldDescriptor) error {
	return d.v.table.SetHidden(fd.Code, true)
}
