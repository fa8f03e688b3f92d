// Package session manages grid session lifecycle.
//
// A session owns one view and the loop that serializes it. It outlives a
// single WebSocket connection: a client may reconnect and attach to the
// same session until it goes idle or reaches its maximum age.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/loop"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/view"
)

// Default lifetimes.
const (
	DefaultMaxAge      = 24 * time.Hour
	DefaultIdleTimeout = 30 * time.Minute
)

// Dialog is a request for an external field-management dialog.
type Dialog struct {
	Action string `json:"action"` // "edit_field" or "hide_field"
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// Listener receives view events. Its methods run on the session loop.
type Listener interface {
	Changed()
	Dialog(d Dialog)
}

// Session holds per-client grid state.
type Session struct {
	ID        string    `json:"id"`
	Schema    string    `json:"schema"`
	Entity    string    `json:"entity"`
	CreatedAt time.Time `json:"created_at"`

	mu         sync.Mutex
	lastActive time.Time

	loop     *loop.Serial
	view     *view.View
	listener Listener // loop-owned
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActiveAt returns the last activity timestamp.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActiveAt()) > timeout
}

// Loop returns the loop that owns the view.
func (s *Session) Loop() loop.Loop { return s.loop }

// View returns the session's view. It must only be used on the session
// loop, as listeners are.
func (s *Session) View() *view.View { return s.view }

// Do runs fn with the view on the session loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(v *view.View)) error {
	s.Touch()
	return s.loop.Do(ctx, func() { fn(s.view) })
}

// Attach routes view events to l, replacing any previous listener. A nil
// listener detaches.
func (s *Session) Attach(ctx context.Context, l Listener) error {
	return s.loop.Do(ctx, func() { s.listener = l })
}

func (s *Session) changed() {
	if s.listener != nil {
		s.listener.Changed()
	}
}

func (s *Session) dialog(action string, entity string, fd schema.FieldDescriptor) {
	if s.listener != nil {
		s.listener.Dialog(Dialog{Action: action, Entity: entity, Field: fd.Code, Name: fd.Name, Type: fd.Type.String()})
	}
}

// EditField asks the client to open its field editor.
func (s *Session) EditField(entity string, fd schema.FieldDescriptor) error {
	s.dialog("edit_field", entity, fd)
	return nil
}

// HideField hides the column and tells the client.
func (s *Session) HideField(entity string, fd schema.FieldDescriptor) error {
	if err := s.view.SetHidden(fd.Code, true); err != nil {
		return err
	}
	s.dialog("hide_field", entity, fd)
	return nil
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration

	ctx     context.Context
	backend view.Backend
	base    view.Config
	logger  *zap.Logger
	events  view.Publisher
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAge sets the absolute session lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithIdleTimeout sets how long a session may go without activity.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithLogger sets the logger handed to session loops and views.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPublisher sends every session's write outcomes to p, tagged with the
// session ID.
func WithPublisher(p view.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

// tagged stamps events with the session that produced them.
type tagged struct {
	id   string
	next view.Publisher
}

func (t tagged) Publish(evt eventbus.Event) {
	evt.Session = t.id
	t.next.Publish(evt)
}

// NewManager creates a session manager. Session loops run until ctx is done
// or the session is removed. base supplies the view defaults.
func NewManager(ctx context.Context, backend view.Backend, base view.Config, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      DefaultMaxAge,
		idleTimeout: DefaultIdleTimeout,
		ctx:         ctx,
		backend:     backend,
		base:        base,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a new session on (schemaCode, entity). Empty arguments fall
// back to the configured defaults. The view is not loaded yet.
func (m *Manager) Create(schemaCode, entity string) *Session {
	cfg := m.base
	if schemaCode != "" {
		cfg.Schema = schemaCode
	}
	if entity != "" {
		cfg.Entity = entity
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.New().String(),
		Schema:     cfg.Schema,
		Entity:     cfg.Entity,
		CreatedAt:  now,
		lastActive: now,
	}
	logger := m.logger.With(zap.String("session", s.ID))
	s.loop = loop.NewSerial(logger)
	opts := []view.Option{
		view.WithLogger(logger),
		view.WithDialogs(s),
		view.WithObserver(s.changed),
	}
	if m.events != nil {
		opts = append(opts, view.WithPublisher(tagged{id: s.ID, next: m.events}))
	}
	s.view = view.New(cfg, s.loop, m.backend, opts...)
	s.loop.Start(m.ctx)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	logger.Debug("session created", zap.String("schema", cfg.Schema), zap.String("entity", cfg.Entity))
	return s
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove deletes a session and stops its loop.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.loop.Stop()
	}
}

// Cleanup removes all expired and idle sessions.
func (m *Manager) Cleanup() {
	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		s.loop.Stop()
		m.logger.Debug("session expired", zap.String("session", s.ID))
	}
}

// Janitor runs Cleanup every interval until ctx is done.
func (m *Manager) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cleanup()
		}
	}
}
