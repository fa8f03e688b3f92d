package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/headermenu"
	"github.com/matthewbaird/railgrid/internal/loop"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/view"
)

type stubBackend struct{ snap *schema.Snapshot }

func (b stubBackend) Telescope(context.Context, string) (*schema.Snapshot, error) {
	return b.snap, nil
}

func (b stubBackend) Read(context.Context, *schema.Snapshot, string, railgun.ReadRequest) ([]schema.Row, error) {
	return []schema.Row{{"uid": "1", "name": "Ada"}}, nil
}

func (stubBackend) Update(context.Context, railgun.UpdateRequest) error { return nil }

func (stubBackend) Create(context.Context, railgun.CreateRequest) (schema.Row, error) {
	return nil, nil
}

func newStub() stubBackend {
	person := schema.NewEntity("Person", "name",
		schema.FieldDescriptor{Code: "name", Name: "Name", Type: schema.FieldText},
	)
	return stubBackend{snap: schema.NewSnapshot("crm", "CRM", person)}
}

type recorder struct {
	mu      sync.Mutex
	changes int
	dialogs []Dialog
}

func (r *recorder) Changed() {
	r.mu.Lock()
	r.changes++
	r.mu.Unlock()
}

func (r *recorder) Dialog(d Dialog) {
	r.mu.Lock()
	r.dialogs = append(r.dialogs, d)
	r.mu.Unlock()
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewManager(ctx, newStub(), view.Config{Schema: "crm", Entity: "Person"}, opts...)
}

func TestManager_CreateGetRemove(t *testing.T) {
	m := newManager(t)
	s := m.Create("", "")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "crm", s.Schema)
	assert.Equal(t, "Person", s.Entity)
	assert.Same(t, s, m.Get(s.ID))
	assert.Equal(t, 1, m.Len())

	other := m.Create("hr", "Employee")
	assert.Equal(t, "hr", other.Schema)
	assert.NotEqual(t, s.ID, other.ID)

	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))
	assert.Nil(t, m.Get("nope"))
	assert.ErrorIs(t, s.Do(context.Background(), func(*view.View) {}), loop.ErrStopped)
}

func TestManager_Expiry(t *testing.T) {
	m := newManager(t, WithMaxAge(time.Hour), WithIdleTimeout(time.Minute))

	old := m.Create("", "")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	idle := m.Create("", "")
	idle.mu.Lock()
	idle.lastActive = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()
	fresh := m.Create("", "")

	assert.Nil(t, m.Get(old.ID))
	m.Cleanup()
	assert.Equal(t, 1, m.Len())
	assert.NotNil(t, m.Get(fresh.ID))
}

func TestSession_LoadAndListen(t *testing.T) {
	m := newManager(t)
	s := m.Create("", "")
	rec := &recorder{}
	ctx := context.Background()
	require.NoError(t, s.Attach(ctx, rec))

	loaded := make(chan error, 1)
	require.NoError(t, s.Do(ctx, func(v *view.View) {
		v.Load(func(err error) { loaded <- err })
	}))
	select {
	case err := <-loaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not settle")
	}

	var (
		frame   view.Frame
		openErr error
		hideErr error
	)
	require.NoError(t, s.Do(ctx, func(v *view.View) {
		_, openErr = v.OpenHeaderMenu("name")
		hideErr = v.ChooseHeaderMenu(headermenu.ItemHideField)
		frame = v.Frame()
	}))
	require.NoError(t, openErr)
	require.NoError(t, hideErr)

	for _, c := range frame.Columns {
		assert.NotEqual(t, "name", c.ID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Positive(t, rec.changes)
	assert.Equal(t, []Dialog{{Action: "hide_field", Entity: "Person", Field: "name", Name: "Name", Type: "TEXT"}}, rec.dialogs)
}

type published struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *published) Publish(evt eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *published) all() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]eventbus.Event(nil), p.events...)
}

func TestManager_PublisherTagsSession(t *testing.T) {
	pub := &published{}
	m := newManager(t, WithPublisher(pub))
	s := m.Create("", "")
	ctx := context.Background()

	loaded := make(chan error, 1)
	require.NoError(t, s.Do(ctx, func(v *view.View) {
		v.Load(func(err error) { loaded <- err })
	}))
	require.NoError(t, <-loaded)

	var confirmErr error
	require.NoError(t, s.Do(ctx, func(v *view.View) {
		if _, confirmErr = v.Activate("1", "name"); confirmErr == nil {
			_, confirmErr = v.Confirm("1", "name", "Ada Lovelace")
		}
	}))
	require.NoError(t, confirmErr)

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	evt := pub.all()[0]
	assert.Equal(t, eventbus.EditSaved, evt.Type)
	assert.Equal(t, s.ID, evt.Session)
	assert.Equal(t, "1", evt.RecordID)
	assert.Equal(t, "Ada Lovelace", evt.Value)
}
