package cell

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/railgrid/internal/render"
	"github.com/matthewbaird/railgrid/internal/schema"
)

type commit struct {
	key   Key
	value any
}

func newMachine() (*Machine, *[]commit) {
	var commits []commit
	m := NewMachine(func(k Key, v any) error {
		commits = append(commits, commit{k, v})
		return nil
	})
	return m, &commits
}

func field(code string, ft schema.FieldType, p schema.Params) render.Context {
	return render.Context{Entity: "Person", Field: schema.FieldDescriptor{Code: code, Type: ft, Params: p}}
}

func TestActivateCancel_NoCommit(t *testing.T) {
	m, commits := newMachine()
	k := Key{RowID: "42", ColumnID: "name"}
	ctx := field("name", schema.FieldText, schema.Params{})

	assert.Equal(t, Display, m.State(k))
	ed, err := m.Activate(k, render.Text{}, ctx, "Foo")
	require.NoError(t, err)
	assert.Equal(t, "Foo", ed.Seed)
	assert.True(t, m.Editing(k))

	require.NoError(t, m.Cancel(k))
	assert.Equal(t, Display, m.State(k))
	assert.Empty(t, *commits)

	assert.ErrorIs(t, m.Cancel(k), ErrNotEditing)
}

func TestConfirm_CommitsChange(t *testing.T) {
	m, commits := newMachine()
	k := Key{RowID: "42", ColumnID: "name"}
	_, err := m.Activate(k, render.Text{}, field("name", schema.FieldText, schema.Params{}), "Foo")
	require.NoError(t, err)

	out, err := m.Confirm(k, " Bar ")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Committed: true, Value: "Bar", Previous: "Foo"}, out)
	assert.Equal(t, []commit{{k, "Bar"}}, *commits)
	assert.False(t, m.Editing(k))
}

func TestConfirm_UnchangedIsNoOp(t *testing.T) {
	tests := []struct {
		name    string
		current any
		input   any
	}{
		{"same text", "Foo", "Foo"},
		{"trimmed same", "Foo", "  Foo "},
		{"number as typed", json.Number("42"), "42"},
		{"nil vs empty", nil, ""},
		{"empty vs whitespace", "", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, commits := newMachine()
			k := Key{RowID: "1", ColumnID: "f"}
			_, err := m.Activate(k, render.Text{}, field("f", schema.FieldText, schema.Params{}), tt.current)
			require.NoError(t, err)

			out, err := m.Confirm(k, tt.input)
			require.NoError(t, err)
			assert.False(t, out.Committed)
			assert.Empty(t, *commits)
			assert.Equal(t, Display, m.State(k))
		})
	}
}

func TestActivate_RejectedForBoolAndEntity(t *testing.T) {
	m, _ := newMachine()

	_, err := m.Activate(Key{"1", "active"}, render.Bool{}, field("active", schema.FieldBool, schema.Params{}), true)
	assert.ErrorIs(t, err, ErrNoEditState)

	_, err = m.Activate(Key{"1", "employer"}, render.Entity{}, field("employer", schema.FieldEntity, schema.Params{}), nil)
	assert.ErrorIs(t, err, ErrNoEditState)

	_, err = m.Activate(Key{"1", "shape"}, render.Missing{}, field("shape", schema.FieldUnknown, schema.Params{}), nil)
	assert.ErrorIs(t, err, ErrNoEditState)
}

func TestBlur_FreeTextCommits(t *testing.T) {
	m, commits := newMachine()
	k := Key{"1", "age"}
	_, err := m.Activate(k, render.Text{}, field("age", schema.FieldInt, schema.Params{}), json.Number("30"))
	require.NoError(t, err)

	out, err := m.Blur(k, "31")
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Len(t, *commits, 1)
}

func TestBlur_ListAndMultiEntityDoNotCommit(t *testing.T) {
	m, commits := newMachine()

	list := Key{"1", "stage"}
	_, err := m.Activate(list, render.List{}, field("stage", schema.FieldList, schema.Params{Options: []string{"a", "b"}}), "a")
	require.NoError(t, err)
	out, err := m.Blur(list, "b")
	require.NoError(t, err)
	assert.False(t, out.Committed)
	assert.False(t, m.Editing(list))

	multi := Key{"1", "links"}
	_, err = m.Activate(multi, render.MultiEntity{}, field("links", schema.FieldMultiEntity, schema.Params{Targets: []string{"Person"}}), nil)
	require.NoError(t, err)
	_, err = m.Blur(multi, []schema.Reference{{Type: "Person", UID: schema.StringID("9")}})
	require.NoError(t, err)

	assert.Empty(t, *commits)
}

func TestConfirm_ParseErrorStaysEditing(t *testing.T) {
	m, commits := newMachine()
	k := Key{"1", "stage"}
	_, err := m.Activate(k, render.List{}, field("stage", schema.FieldList, schema.Params{Options: []string{"a"}}), "a")
	require.NoError(t, err)

	_, err = m.Confirm(k, "zzz")
	assert.True(t, errors.Is(err, render.ErrInvalidInput))
	assert.True(t, m.Editing(k))
	assert.Empty(t, *commits)
}

func TestConfirm_MultiEntityEmptiedCommitsNil(t *testing.T) {
	m, commits := newMachine()
	k := Key{"1", "links"}
	current := []schema.Reference{{Type: "Person", UID: schema.StringID("9"), Display: "Ada"}}
	_, err := m.Activate(k, render.MultiEntity{}, field("links", schema.FieldMultiEntity, schema.Params{Targets: []string{"Person"}}), current)
	require.NoError(t, err)

	out, err := m.Confirm(k, []schema.Reference{})
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Nil(t, out.Value)
	assert.Equal(t, []commit{{k, nil}}, *commits)
}

func TestToggle(t *testing.T) {
	m, commits := newMachine()
	k := Key{"42", "active"}
	ctx := field("active", schema.FieldBool, schema.Params{})

	out, err := m.Toggle(k, render.Bool{}, ctx, false, true)
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Equal(t, []commit{{k, true}}, *commits)
	assert.False(t, m.Editing(k))

	out, err = m.Toggle(k, render.Bool{}, ctx, nil, false)
	require.NoError(t, err)
	assert.False(t, out.Committed)
	assert.Len(t, *commits, 1)

	_, err = m.Toggle(Key{"42", "name"}, render.Text{}, field("name", schema.FieldText, schema.Params{}), "x", true)
	assert.ErrorIs(t, err, ErrNotToggle)
}

func TestActivateTwiceKeepsOriginal(t *testing.T) {
	m, commits := newMachine()
	k := Key{"1", "name"}
	ctx := field("name", schema.FieldText, schema.Params{})
	_, err := m.Activate(k, render.Text{}, ctx, "Foo")
	require.NoError(t, err)
	_, err = m.Activate(k, render.Text{}, ctx, "Other")
	require.NoError(t, err)

	out, err := m.Confirm(k, "Foo")
	require.NoError(t, err)
	assert.False(t, out.Committed)
	assert.Empty(t, *commits)
}

func TestReset(t *testing.T) {
	m, _ := newMachine()
	_, _ = m.Activate(Key{"1", "a"}, render.Text{}, field("a", schema.FieldText, schema.Params{}), "")
	_, _ = m.Activate(Key{"2", "a"}, render.Text{}, field("a", schema.FieldText, schema.Params{}), "")
	assert.Len(t, m.EditingKeys(), 2)
	m.Reset()
	assert.Empty(t, m.EditingKeys())
}

func TestUnchanged(t *testing.T) {
	assert.True(t, Unchanged(nil, false))
	assert.True(t, Unchanged([]schema.Reference(nil), nil))
	assert.True(t, Unchanged(0, ""))
	assert.False(t, Unchanged(false, true))
	assert.False(t, Unchanged("a", ""))
}

func TestCommitError(t *testing.T) {
	gone := errors.New("row gone")
	m := NewMachine(func(Key, any) error { return gone })
	k := Key{RowID: "42", ColumnID: "name"}
	_, err := m.Activate(k, render.Text{}, field("name", schema.FieldText, schema.Params{}), "Foo")
	require.NoError(t, err)

	out, err := m.Confirm(k, "Bar")
	assert.ErrorIs(t, err, gone)
	assert.False(t, out.Committed)
	assert.Equal(t, "Foo", out.Value)
	assert.False(t, m.Editing(k))

	ctx := field("active", schema.FieldBool, schema.Params{})
	out, err = m.Toggle(Key{RowID: "42", ColumnID: "active"}, render.Bool{}, ctx, false, true)
	assert.ErrorIs(t, err, gone)
	assert.False(t, out.Committed)
}
