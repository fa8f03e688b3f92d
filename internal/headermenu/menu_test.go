package headermenu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/railgrid/internal/grid"
	"github.com/matthewbaird/railgrid/internal/schema"
)

type dialogCall struct {
	action string
	entity string
	field  string
}

type fakeDialogs struct{ calls []dialogCall }

func (f *fakeDialogs) EditField(entity string, fd schema.FieldDescriptor) error {
	f.calls = append(f.calls, dialogCall{"edit", entity, fd.Code})
	return nil
}

func (f *fakeDialogs) HideField(entity string, fd schema.FieldDescriptor) error {
	f.calls = append(f.calls, dialogCall{"hide", entity, fd.Code})
	return nil
}

func testTable(t *testing.T) *grid.Table {
	t.Helper()
	person := schema.NewEntity("Person", "name",
		schema.FieldDescriptor{Code: "name", Name: "Name", Type: schema.FieldText},
		schema.FieldDescriptor{Code: "stage", Name: "Stage", Type: schema.FieldList,
			Params: schema.Params{Options: []string{"a"}}},
	)
	tbl, err := grid.Build(schema.NewSnapshot("crm", "CRM", person), "Person", nil)
	require.NoError(t, err)
	return tbl
}

func TestOpen_ResolvesField(t *testing.T) {
	d := &fakeDialogs{}
	h := New(d)

	m, err := h.Open(testTable(t), "stage")
	require.NoError(t, err)
	assert.Equal(t, "stage", m.Field.Code)
	assert.Equal(t, schema.FieldList, m.Field.Type)
	assert.Equal(t, []string{"a"}, m.Field.Params.Options)
	assert.Equal(t, []Item{{ItemEditField, "Edit Field"}, {ItemHideField, "Hide Field"}}, m.Items)

	cur, ok := h.Current()
	assert.True(t, ok)
	assert.Equal(t, "stage", cur.ColumnID)
	assert.Empty(t, d.calls)
}

func TestOpen_SyntheticColumns(t *testing.T) {
	h := New(&fakeDialogs{})
	tbl := testTable(t)

	_, err := h.Open(tbl, grid.SelectColumnID)
	assert.ErrorIs(t, err, ErrNoMenu)
	_, err = h.Open(tbl, grid.AddColumnID)
	assert.ErrorIs(t, err, ErrNoMenu)
	_, err = h.Open(tbl, "ghost")
	assert.ErrorIs(t, err, grid.ErrUnknownColumn)

	_, ok := h.Current()
	assert.False(t, ok)
}

func TestChoose_Delegates(t *testing.T) {
	d := &fakeDialogs{}
	h := New(d)
	tbl := testTable(t)

	_, err := h.Open(tbl, "name")
	require.NoError(t, err)
	require.NoError(t, h.Choose(ItemEditField))

	_, err = h.Open(tbl, "stage")
	require.NoError(t, err)
	require.NoError(t, h.Choose(ItemHideField))

	assert.Equal(t, []dialogCall{{"edit", "Person", "name"}, {"hide", "Person", "stage"}}, d.calls)
	_, ok := h.Current()
	assert.False(t, ok)

	// The field definition is not touched.
	fd, err := tbl.Snapshot().Field("Person", "stage")
	require.NoError(t, err)
	assert.Equal(t, "Stage", fd.Name)
}

func TestChoose_Errors(t *testing.T) {
	d := &fakeDialogs{}
	h := New(d)
	assert.ErrorIs(t, h.Choose(ItemEditField), ErrNotOpen)

	_, err := h.Open(testTable(t), "name")
	require.NoError(t, err)
	err = h.Choose("edit_feild")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean 'edit_field'?")
	assert.Empty(t, d.calls)

	h.Close()
	_, ok := h.Current()
	assert.False(t, ok)
}
