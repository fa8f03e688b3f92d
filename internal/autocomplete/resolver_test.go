package autocomplete

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

type readCall struct {
	entity string
	req    railgun.ReadRequest
}

type fakeReader struct {
	mu    sync.Mutex
	calls []readCall
	rows  map[string][]schema.Row
	fail  map[string]error
}

func (f *fakeReader) Read(_ context.Context, _ *schema.Snapshot, entity string, req railgun.ReadRequest) ([]schema.Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, readCall{entity, req})
	f.mu.Unlock()
	if err := f.fail[entity]; err != nil {
		return nil, err
	}
	return f.rows[entity], nil
}

func testSnapshot() *schema.Snapshot {
	person := schema.NewEntity("Person", "name",
		schema.FieldDescriptor{Code: "name", Name: "Name", Type: schema.FieldText},
		schema.FieldDescriptor{Code: "links", Name: "Links", Type: schema.FieldMultiEntity,
			Params: schema.Params{Targets: []string{"Person", "Organization"}}},
	)
	org := schema.NewEntity("Organization", "title",
		schema.FieldDescriptor{Code: "title", Name: "Title", Type: schema.FieldText},
	)
	return schema.NewSnapshot("crm", "CRM", person, org)
}

func linksCandidates(t *testing.T, snap *schema.Snapshot) []Candidate {
	t.Helper()
	fd, err := snap.Field("Person", "links")
	require.NoError(t, err)
	return CandidatesOf(fd)
}

func TestSearch_OneRequestPerType(t *testing.T) {
	snap := testSnapshot()
	r := &fakeReader{rows: map[string][]schema.Row{
		"Person":       {{"uid": "1", "name": "Alice"}, {"uid": "2", "name": "Alan"}},
		"Organization": {{"uid": "9", "title": "Alpha Corp"}},
	}}
	res := New(r)

	opts := res.Search(context.Background(), snap, linksCandidates(t, snap), "Al")
	assert.Len(t, opts, 3)

	require.Len(t, r.calls, 2)
	sort.Slice(r.calls, func(i, j int) bool { return r.calls[i].entity < r.calls[j].entity })
	assert.Equal(t, "Organization", r.calls[0].entity)
	assert.Equal(t, []string{"title"}, r.calls[0].req.ReturnFields)
	assert.Equal(t, 10, r.calls[0].req.Pagination)
	assert.Equal(t, railgun.StartsWith("title", "Al"), r.calls[0].req.Filters)
	assert.Equal(t, railgun.StartsWith("name", "Al"), r.calls[1].req.Filters)
}

func TestSearch_PartialFailure(t *testing.T) {
	snap := testSnapshot()
	r := &fakeReader{
		rows: map[string][]schema.Row{
			"Person":       {{"uid": "1", "name": "Alice"}},
			"Organization": {{"uid": "9", "title": "Alpha Corp"}},
		},
		fail: map[string]error{"Organization": &railgun.RejectionError{Op: "read", Status: 500}},
	}
	res := New(r)

	opts := res.Search(context.Background(), snap, linksCandidates(t, snap), "Al")
	require.Len(t, opts, 1)
	assert.Equal(t, Option{
		Label: "Alice",
		Kind:  KindReference,
		Value: schema.Reference{Type: "Person", UID: schema.StringID("1"), Display: "Alice", DisplayCol: "name"},
	}, opts[0])
}

func TestSearch_AllFail(t *testing.T) {
	snap := testSnapshot()
	boom := errors.New("down")
	r := &fakeReader{fail: map[string]error{"Person": boom, "Organization": boom}}

	opts := New(r).Search(context.Background(), snap, linksCandidates(t, snap), "x")
	assert.Empty(t, opts)
}

func TestSearch_UnknownTypeSkipped(t *testing.T) {
	snap := testSnapshot()
	r := &fakeReader{rows: map[string][]schema.Row{"Person": {{"uid": "1", "name": "Ann"}}}}

	opts := New(r).Search(context.Background(), snap, []Candidate{{Type: "Planet"}, {Type: "Person"}}, "A")
	assert.Len(t, opts, 1)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "Person", r.calls[0].entity)
}

func TestSearch_LimitApplied(t *testing.T) {
	snap := testSnapshot()
	rows := make([]schema.Row, 5)
	for i := range rows {
		rows[i] = schema.Row{"uid": schema.NumberID(int64(i)), "name": "A"}
	}
	r := &fakeReader{rows: map[string][]schema.Row{"Person": rows}}

	opts := New(r, WithLimit(3), WithParallelism(1)).Search(context.Background(), snap, []Candidate{{Type: "Person"}}, "A")
	assert.Len(t, opts, 3)
	assert.Equal(t, 3, r.calls[0].req.Pagination)
}

func TestNoOptionsMessage(t *testing.T) {
	snap := testSnapshot()
	assert.Equal(t, "Find a Person. Organization by typing its name.", NoOptionsMessage(linksCandidates(t, snap)))
}

func TestFilterOptions(t *testing.T) {
	fd := schema.FieldDescriptor{Params: schema.Params{Options: []string{"Lead", "lost", "customer"}}}
	assert.Equal(t, []string{"Lead", "lost"}, FilterOptions(fd, "l"))
	assert.Equal(t, []string{"Lead", "lost", "customer"}, FilterOptions(fd, ""))
	assert.Nil(t, FilterOptions(fd, "z"))
}
