package devbackend

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/railgrid/internal/schema"
)

//go:embed fixtures/crm.cue
var defaultFixture []byte

// Fixture is the schema and seed data served by the dev backend.
type Fixture struct {
	Schemas []*schema.Snapshot
	// Records holds seed rows by schema code, then entity type.
	Records map[string]map[string][]schema.Row
}

// DefaultFixture returns the built-in CRM fixture.
func DefaultFixture() (*Fixture, error) {
	return ParseFixture(defaultFixture, "crm.cue")
}

// LoadFixture reads a CUE fixture file. An empty path selects the built-in
// fixture.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return DefaultFixture()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(src, path)
}

// ParseFixture evaluates CUE source holding "schemas" and "records". Schema
// fields keep their declaration order.
func ParseFixture(src []byte, filename string) (*Fixture, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(src, cue.Filename(filename))
	if val.Err() != nil {
		return nil, fmt.Errorf("compiling fixture: %w", val.Err())
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating fixture: %w", err)
	}

	f := &Fixture{Records: make(map[string]map[string][]schema.Row)}

	schemas := val.LookupPath(cue.ParsePath("schemas"))
	if schemas.Exists() {
		iter, err := schemas.Fields()
		if err != nil {
			return nil, fmt.Errorf("fixture schemas: %w", err)
		}
		for iter.Next() {
			code := iter.Selector().Unquoted()
			raw, err := iter.Value().MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("fixture schema '%s': %w", code, err)
			}
			snap, err := schema.Decode(raw, code)
			if err != nil {
				return nil, err
			}
			f.Schemas = append(f.Schemas, snap)
		}
	}

	records := val.LookupPath(cue.ParsePath("records"))
	if !records.Exists() {
		return f, nil
	}
	iter, err := records.Fields()
	if err != nil {
		return nil, fmt.Errorf("fixture records: %w", err)
	}
	for iter.Next() {
		code := iter.Selector().Unquoted()
		byEntity := make(map[string][]schema.Row)
		entities, err := iter.Value().Fields()
		if err != nil {
			return nil, fmt.Errorf("fixture records '%s': %w", code, err)
		}
		for entities.Next() {
			entity := entities.Selector().Unquoted()
			raw, err := entities.Value().MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("fixture records '%s.%s': %w", code, entity, err)
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var rows []map[string]any
			if err := dec.Decode(&rows); err != nil {
				return nil, fmt.Errorf("fixture records '%s.%s': %w", code, entity, err)
			}
			for _, r := range rows {
				byEntity[entity] = append(byEntity[entity], schema.Row(r))
			}
		}
		f.Records[code] = byEntity
	}
	return f, nil
}
