package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const telescopePayload = `{
  "code": "crm",
  "name": "CRM",
  "entities": {
    "Person": {
      "code": "person",
      "soloname": "Person",
      "multiname": "People",
      "display_name_col": "name",
      "id": 3,
      "fields": {
        "uid":    {"code": "uid", "name": "ID", "type": "INT"},
        "name":   {"code": "name", "name": "Name", "type": "TEXT"},
        "active": {"code": "active", "name": "Active", "type": "BOOL"},
        "stage":  {"code": "stage", "name": "Stage", "type": "LIST",
                   "params": {"constraints": ["lead", "customer"]}},
        "links":  {"code": "links", "name": "Links", "type": "MULTIENTITY",
                   "params": {"constraints": {"Person": {"relation": "m2m"}, "Organization": {}}}},
        "employer": {"code": "employer", "name": "Employer", "type": "ENTITY",
                   "params": {"constraints": {"Organization": {}}}},
        "shape":  {"code": "shape", "name": "Shape", "type": "POLYGON"}
      }
    },
    "Organization": {
      "code": "org",
      "soloname": "Organization",
      "display_name_col": "title",
      "fields": {
        "title": {"code": "title", "name": "Title", "type": "TEXT"}
      }
    }
  }
}`

func TestDecode_PreservesOrder(t *testing.T) {
	snap, err := Decode([]byte(telescopePayload), "")
	require.NoError(t, err)

	assert.Equal(t, "crm", snap.Code())
	assert.Equal(t, "CRM", snap.Name())
	assert.Equal(t, []string{"Person", "Organization"}, snap.EntityTypes())

	person, err := snap.Entity("Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"uid", "name", "active", "stage", "links", "employer", "shape"}, person.FieldCodes())
	assert.Equal(t, "name", person.DisplayNameCol)
	assert.Equal(t, "3", person.ID.String())
}

func TestDecode_FieldTypesAndParams(t *testing.T) {
	snap, err := Decode([]byte(telescopePayload), "")
	require.NoError(t, err)

	stage, err := snap.Field("Person", "stage")
	require.NoError(t, err)
	assert.Equal(t, FieldList, stage.Type)
	assert.Equal(t, []string{"lead", "customer"}, stage.Params.Options)

	links, err := snap.Field("Person", "links")
	require.NoError(t, err)
	assert.Equal(t, FieldMultiEntity, links.Type)
	assert.Equal(t, []string{"Person", "Organization"}, links.Params.Targets)
	assert.JSONEq(t, `{"relation":"m2m"}`, string(links.Params.TargetParams["Person"]))

	shape, err := snap.Field("Person", "shape")
	require.NoError(t, err)
	assert.Equal(t, FieldUnknown, shape.Type)
	assert.Equal(t, "POLYGON", shape.Tag)
}

func TestDecode_FallbackCode(t *testing.T) {
	snap, err := Decode([]byte(`{"entities": null}`), "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", snap.Code())
	assert.Equal(t, "sales", snap.Name())
	assert.Empty(t, snap.EntityTypes())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"entities": [1, 2]}`), "x")
	assert.Error(t, err)
}

func TestDecodeParams_Tolerant(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		options []string
		targets []string
	}{
		{"empty", ``, nil, nil},
		{"null", `null`, nil, nil},
		{"garbage", `{"constraints": 5}`, nil, nil},
		{"string encoded", `"{\"constraints\": [\"a\", \"b\"]}"`, []string{"a", "b"}, nil},
		{"numeric options", `{"constraints": [1, 2]}`, []string{"1", "2"}, nil},
		{"targets", `{"constraints": {"B": {}, "A": {}}}`, nil, []string{"B", "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodeParams(json.RawMessage(tt.raw))
			assert.Equal(t, tt.options, p.Options)
			assert.Equal(t, tt.targets, p.Targets)
		})
	}
}

func TestSnapshot_MissingDescriptor(t *testing.T) {
	snap, err := Decode([]byte(telescopePayload), "")
	require.NoError(t, err)

	_, err = snap.Entity("Persn")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDescriptor))
	assert.Contains(t, err.Error(), "did you mean 'Person'?")

	_, err = snap.Field("Person", "nope")
	assert.True(t, errors.Is(err, ErrMissingDescriptor))

	var nilSnap *Snapshot
	_, err = nilSnap.Entity("Person")
	assert.True(t, errors.Is(err, ErrMissingDescriptor))
	assert.Equal(t, "", snap.DisplayNameCol("Ghost"))
}

func TestDecodeRows_References(t *testing.T) {
	snap, err := Decode([]byte(telescopePayload), "")
	require.NoError(t, err)

	rows, err := DecodeRows(snap, "Person", []byte(`[
	  {"uid": 42, "name": "Ada", "active": true,
	   "links": [{"type": "Organization", "uid": 7, "title": "Acme"}, {"uid": 9, "name": "Bob"}],
	   "employer": {"uid": 7, "title": "Acme"}},
	  {"uid": 43, "name": "Eve", "links": [{"uid": null}]}
	]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "42", rows[0].ID().String())
	assert.Equal(t, json.Number("42"), rows[0]["uid"])

	links, ok := rows[0]["links"].([]Reference)
	require.True(t, ok)
	require.Len(t, links, 2)
	assert.Equal(t, "Organization", links[0].Type)
	assert.Equal(t, "Acme", links[0].Label())
	// An untyped member of a multi-target field keeps an empty type.
	assert.Equal(t, "", links[1].Type)
	assert.Equal(t, "9", links[1].Label())

	employer, ok := rows[0]["employer"].(Reference)
	require.True(t, ok)
	assert.Equal(t, "Organization", employer.Type)
	assert.Equal(t, "Acme", employer.Display)

	assert.Nil(t, rows[1]["links"])
}

func TestSnapshot_MarshalRoundTrip(t *testing.T) {
	snap, err := Decode([]byte(telescopePayload), "")
	require.NoError(t, err)

	out, err := json.Marshal(snap)
	require.NoError(t, err)

	again, err := Decode(out, "")
	require.NoError(t, err)
	assert.Equal(t, snap.EntityTypes(), again.EntityTypes())

	p1, _ := snap.Entity("Person")
	p2, _ := again.Entity("Person")
	assert.Equal(t, p1.FieldCodes(), p2.FieldCodes())

	links, err := again.Field("Person", "links")
	require.NoError(t, err)
	assert.Equal(t, []string{"Person", "Organization"}, links.Params.Targets)
}

func TestNewEntity_EncodesConstraints(t *testing.T) {
	e := NewEntity("Task", "title",
		FieldDescriptor{Code: "title", Name: "Title", Type: FieldText},
		FieldDescriptor{Code: "state", Name: "State", Type: FieldList, Params: Params{Options: []string{"open", "done"}}},
		FieldDescriptor{Code: "owner", Name: "Owner", Type: FieldEntity, Params: Params{Targets: []string{"Person"}}},
	)
	b, err := json.Marshal(e)
	require.NoError(t, err)

	back, err := DecodeEntity("Task", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "state", "owner"}, back.FieldCodes())

	state, _ := back.Field("state")
	assert.Equal(t, []string{"open", "done"}, state.Params.Options)
	owner, _ := back.Field("owner")
	assert.Equal(t, []string{"Person"}, owner.Params.Targets)
}
