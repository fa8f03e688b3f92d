package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/cell"
	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/headermenu"
	"github.com/matthewbaird/railgrid/internal/loop"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

type fakeBackend struct {
	mu           sync.Mutex
	snap         *schema.Snapshot
	rows         map[string][]schema.Row
	telescopeErr error
	reads        []railgun.ReadRequest
	updates      []railgun.UpdateRequest
	creates      []railgun.CreateRequest
}

func (f *fakeBackend) Telescope(context.Context, string) (*schema.Snapshot, error) {
	if f.telescopeErr != nil {
		return nil, f.telescopeErr
	}
	return f.snap, nil
}

func (f *fakeBackend) Read(_ context.Context, _ *schema.Snapshot, entity string, req railgun.ReadRequest) ([]schema.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	return f.rows[entity], nil
}

func (f *fakeBackend) Update(_ context.Context, req railgun.UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return nil
}

func (f *fakeBackend) Create(_ context.Context, req railgun.CreateRequest) (schema.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	return schema.Row(req.Data).With("uid", "new"), nil
}

func newBackend() *fakeBackend {
	person := schema.NewEntity("Person", "name",
		schema.FieldDescriptor{Code: "uid", Name: "UID", Type: schema.FieldText},
		schema.FieldDescriptor{Code: "name", Name: "Name", Type: schema.FieldText},
		schema.FieldDescriptor{Code: "active", Name: "Active", Type: schema.FieldBool},
		schema.FieldDescriptor{Code: "links", Name: "Links", Type: schema.FieldMultiEntity,
			Params: schema.Params{Targets: []string{"Person", "Organization"}}},
	)
	org := schema.NewEntity("Organization", "title",
		schema.FieldDescriptor{Code: "title", Name: "Title", Type: schema.FieldText},
	)
	return &fakeBackend{
		snap: schema.NewSnapshot("crm", "CRM", person, org),
		rows: map[string][]schema.Row{
			"Person": {
				{"uid": schema.NumberID(1), "name": "Ada", "active": false},
				{"uid": schema.NumberID(2), "name": "Alan", "active": true},
			},
			"Organization": {{"uid": "o1", "title": "Acme"}},
		},
	}
}

func loaded(t *testing.T, b *fakeBackend, opts ...Option) (*View, *loop.Manual) {
	t.Helper()
	l := loop.NewManual()
	v := New(Config{Schema: "crm", Entity: "Person"}, l, b, opts...)
	var loadErr error
	v.Load(func(err error) { loadErr = err })
	l.CompleteAll()
	require.NoError(t, loadErr)
	require.True(t, v.Loaded())
	return v, l
}

func TestLoad_GatesGestures(t *testing.T) {
	b := newBackend()
	l := loop.NewManual()
	v := New(Config{Schema: "crm", Entity: "Person"}, l, b)

	_, err := v.Activate("1", "name")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, v.ToggleAll(), ErrNotLoaded)
	assert.ErrorIs(t, v.Resize("name", 10), ErrNotLoaded)
	assert.ErrorIs(t, v.CreateRecord(nil, nil), ErrNotLoaded)

	v.Load(nil)
	f := v.Frame()
	assert.False(t, f.Loaded)
	assert.True(t, f.Loading)
	assert.Empty(t, f.Rows)

	l.CompleteAll()
	f = v.Frame()
	assert.True(t, f.Loaded)
	assert.False(t, f.Loading)
	require.Len(t, f.Rows, 2)

	require.Len(t, b.reads, 1)
	assert.Equal(t, []string{"uid", "name", "active", "links"}, b.reads[0].ReturnFields)
	assert.Equal(t, DefaultPageSize, b.reads[0].Pagination)
	assert.Nil(t, b.reads[0].Filters)
}

func TestLoad_Failure(t *testing.T) {
	b := newBackend()
	b.telescopeErr = &railgun.TransportError{Op: "telescope", Err: errors.New("refused")}
	l := loop.NewManual()
	v := New(Config{Schema: "crm", Entity: "Person"}, l, b)

	var got error
	v.Load(func(err error) { got = err })
	l.CompleteAll()

	assert.True(t, railgun.IsTransport(got))
	assert.False(t, v.Loaded())
	assert.Contains(t, v.Frame().Error, "telescope")
}

func TestLoad_UnknownEntity(t *testing.T) {
	b := newBackend()
	l := loop.NewManual()
	v := New(Config{Schema: "crm", Entity: "Planet"}, l, b)

	var got error
	v.Load(func(err error) { got = err })
	l.CompleteAll()
	assert.ErrorIs(t, got, schema.ErrMissingDescriptor)
	assert.Empty(t, b.reads)
}

func TestFrame_Columns(t *testing.T) {
	v, _ := loaded(t, newBackend())
	f := v.Frame()

	ids := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{grid.SelectColumnID, "uid", "name", "active", "links", grid.AddColumnID}, ids)
	assert.Equal(t, "BOOL", f.Columns[3].Type)
	assert.Equal(t, "1", f.Rows[0].ID)
	assert.Equal(t, "Ada", f.Rows[0].Cells[2].Text)
	assert.Equal(t, "[x]", f.Rows[1].Cells[3].Text)
	assert.True(t, f.Rows[1].Cells[3].Checked)
}

func TestEdit_ConfirmCommitsAndFlashes(t *testing.T) {
	b := newBackend()
	notified := 0
	v, l := loaded(t, b, WithObserver(func() { notified++ }))

	ed, err := v.Activate("2", "name")
	require.NoError(t, err)
	assert.Equal(t, "Alan", ed.Seed)
	assert.NotNil(t, v.Frame().Rows[1].Cells[2].Editor)

	out, err := v.Confirm("2", "name", "Alan Turing")
	require.NoError(t, err)
	assert.True(t, out.Committed)

	// Optimistic before the request settles.
	f := v.Frame()
	assert.Equal(t, "Alan Turing", f.Rows[1].Cells[2].Text)
	assert.True(t, f.Rows[1].Cells[2].InFlight)
	assert.Nil(t, f.Rows[1].Cells[2].Editor)

	l.CompleteAll()
	require.Len(t, b.updates, 1)
	assert.Equal(t, railgun.UpdateRequest{
		Schema: "crm", Entity: "Person", EntityID: schema.NumberID(2),
		Data: map[string]any{"name": "Alan Turing"},
	}, b.updates[0])
	assert.True(t, v.Frame().Rows[1].Cells[2].Flash)

	l.Advance(time.Second)
	assert.False(t, v.Frame().Rows[1].Cells[2].Flash)
	assert.Positive(t, notified)
}

func TestEdit_UnchangedIsNoop(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	_, err := v.Activate("1", "name")
	require.NoError(t, err)
	out, err := v.Confirm("1", "name", "Ada")
	require.NoError(t, err)
	assert.False(t, out.Committed)

	_, err = v.Activate("1", "links")
	require.NoError(t, err)
	out, err = v.Confirm("1", "links", []schema.Reference{})
	require.NoError(t, err)
	assert.False(t, out.Committed)

	l.CompleteAll()
	assert.Empty(t, b.updates)
}

func TestEdit_CancelAndBlur(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	_, err := v.Activate("1", "name")
	require.NoError(t, err)
	require.NoError(t, v.Cancel("1", "name"))
	assert.ErrorIs(t, v.Cancel("1", "name"), cell.ErrNotEditing)

	_, err = v.Activate("1", "name")
	require.NoError(t, err)
	out, err := v.Blur("1", "name", "Ada L.")
	require.NoError(t, err)
	assert.True(t, out.Committed)

	_, err = v.Activate("1", "active")
	assert.ErrorIs(t, err, cell.ErrNoEditState)
	_, err = v.Activate("1", grid.SelectColumnID)
	assert.ErrorIs(t, err, grid.ErrNotFieldColumn)
	_, err = v.Activate("9", "name")
	assert.ErrorIs(t, err, grid.ErrRowOutOfRange)

	l.CompleteAll()
	assert.Len(t, b.updates, 1)
}

func TestToggle(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	out, err := v.Toggle("1", "active", true)
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.True(t, v.Frame().Rows[0].Cells[3].Checked)

	l.CompleteAll()
	require.Len(t, b.updates, 1)
	assert.Equal(t, map[string]any{"active": true}, b.updates[0].Data)

	_, err = v.Toggle("1", "name", true)
	assert.ErrorIs(t, err, cell.ErrNotToggle)
}

func TestSearch(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	_, err := v.Activate("1", "links")
	require.NoError(t, err)
	assert.Equal(t, "Find a Person. Organization by typing its name.", v.Frame().Rows[0].Cells[4].Editor.Hint)

	var got []autocomplete.Option
	require.NoError(t, v.Search("1", "links", "A", func(o []autocomplete.Option) { got = o }))
	l.CompleteAll()
	assert.Len(t, got, 3)

	got = []autocomplete.Option{{Label: "sentinel"}}
	require.NoError(t, v.Search("1", "links", "", func(o []autocomplete.Option) { got = o }))
	l.Flush()
	assert.Nil(t, got)

	err = v.Search("1", "name", "A", func([]autocomplete.Option) {})
	assert.ErrorIs(t, err, ErrNotSearchable)
}

func TestSearch_DroppedAfterReload(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	called := false
	require.NoError(t, v.Search("1", "links", "A", func([]autocomplete.Option) { called = true }))
	v.Reload("crm", "Organization", nil)
	l.CompleteAll()

	assert.False(t, called)
	assert.Equal(t, "Organization", v.Frame().Entity)
	assert.Equal(t, "Acme", v.Frame().Rows[0].Cells[1].Text)
}

func TestSelectionAndResize(t *testing.T) {
	v, _ := loaded(t, newBackend())

	require.NoError(t, v.ToggleRow("2"))
	f := v.Frame()
	assert.False(t, f.Rows[0].Selected)
	assert.True(t, f.Rows[1].Selected)
	assert.True(t, f.Rows[1].Cells[0].Checked)

	require.NoError(t, v.ToggleAll())
	assert.True(t, v.Frame().AllSelected)
	require.NoError(t, v.ToggleAll())
	assert.False(t, v.Frame().AllSelected)

	require.NoError(t, v.Resize("name", 320))
	assert.Equal(t, 320, v.Frame().Columns[2].Width)
	assert.ErrorIs(t, v.Resize(grid.SelectColumnID, 10), grid.ErrNotResizable)
}

type recordingDialogs struct{ edited []string }

func (r *recordingDialogs) EditField(_ string, fd schema.FieldDescriptor) error {
	r.edited = append(r.edited, fd.Code)
	return nil
}

func (r *recordingDialogs) HideField(string, schema.FieldDescriptor) error { return nil }

func TestHeaderMenu(t *testing.T) {
	v, _ := loaded(t, newBackend())

	m, err := v.OpenHeaderMenu("active")
	require.NoError(t, err)
	assert.Equal(t, schema.FieldBool, m.Field.Type)
	require.NotNil(t, v.Frame().Menu)

	require.NoError(t, v.ChooseHeaderMenu(headermenu.ItemHideField))
	f := v.Frame()
	assert.Nil(t, f.Menu)
	for _, c := range f.Columns {
		assert.NotEqual(t, "active", c.ID)
	}

	_, err = v.OpenHeaderMenu("name")
	require.NoError(t, err)
	assert.ErrorIs(t, v.ChooseHeaderMenu(headermenu.ItemEditField), ErrNoDialog)

	d := &recordingDialogs{}
	v2, _ := loaded(t, newBackend(), WithDialogs(d))
	_, err = v2.OpenHeaderMenu("name")
	require.NoError(t, err)
	require.NoError(t, v2.ChooseHeaderMenu(headermenu.ItemEditField))
	assert.Equal(t, []string{"name"}, d.edited)
}

func TestCreateRecord(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)

	form, err := v.CreateForm()
	require.NoError(t, err)
	require.Len(t, form, 3)
	assert.Equal(t, "name", form[0].Code)
	assert.False(t, form[2].Supported)

	var created schema.Row
	require.NoError(t, v.CreateRecord(map[string]string{
		"uid":    "x",
		"name":   "Grace",
		"active": "true",
		"links":  "",
	}, func(r schema.Row, err error) {
		require.NoError(t, err)
		created = r
	}))
	l.CompleteAll()

	require.Len(t, b.creates, 1)
	assert.Equal(t, railgun.CreateRequest{
		Schema: "crm", Entity: "Person",
		Data: map[string]any{"name": "Grace", "active": true},
	}, b.creates[0])
	assert.Equal(t, "new", created["uid"])
	assert.Equal(t, 2, v.Table().Len())
}

type recorder struct{ events []eventbus.Event }

func (r *recorder) Publish(evt eventbus.Event) { r.events = append(r.events, evt) }

func TestPublisher(t *testing.T) {
	b := newBackend()
	rec := &recorder{}
	v, l := loaded(t, b, WithPublisher(rec))

	_, err := v.Toggle("1", "active", true)
	require.NoError(t, err)
	require.NoError(t, v.CreateRecord(map[string]string{"name": "Grace"}, nil))
	l.CompleteAll()

	require.Len(t, rec.events, 2)
	saved := rec.events[0]
	assert.Equal(t, eventbus.EditSaved, saved.Type)
	assert.Equal(t, "crm", saved.Schema)
	assert.Equal(t, "Person", saved.Entity)
	assert.Equal(t, "1", saved.RecordID)
	assert.Equal(t, "active", saved.Field)
	assert.Equal(t, true, saved.Value)
	assert.False(t, saved.Failed())
	assert.Len(t, saved.ID, 26)

	created := rec.events[1]
	assert.Equal(t, eventbus.RecordCreated, created.Type)
	assert.Equal(t, "new", created.RecordID)
}

func TestSetFilter(t *testing.T) {
	b := newBackend()
	v, l := loaded(t, b)
	assert.Nil(t, b.reads[0].Filters)

	err := v.SetFilter(`nmae = Ada`, nil)
	assert.ErrorContains(t, err, "did you mean 'name'?")
	err = v.SetFilter(`name =`, nil)
	assert.Error(t, err)
	assert.Len(t, b.reads, 1, "rejected filters do not reload")

	var loadErr error
	require.NoError(t, v.SetFilter(`name starts_with "al" or active = true`, func(err error) { loadErr = err }))
	l.CompleteAll()
	require.NoError(t, loadErr)
	require.Len(t, b.reads, 2)
	f := b.reads[1].Filters
	require.NotNil(t, f)
	assert.Equal(t, railgun.Or, f.Operator)
	assert.Len(t, f.Conditions, 2)
	assert.Equal(t, `name starts_with "al" or active = true`, v.Frame().Filter)

	v.Reload("crm", "Organization", nil)
	l.CompleteAll()
	assert.Empty(t, v.Frame().Filter)
	assert.Nil(t, b.reads[2].Filters)
}

func TestLoad_BadFilter(t *testing.T) {
	b := newBackend()
	l := loop.NewManual()
	v := New(Config{Schema: "crm", Entity: "Person", Filter: "age > 3"}, l, b)
	var loadErr error
	v.Load(func(err error) { loadErr = err })
	l.CompleteAll()
	require.Error(t, loadErr)
	assert.ErrorIs(t, loadErr, schema.ErrMissingDescriptor)
	assert.False(t, v.Loaded())
	assert.Empty(t, b.reads)
}
