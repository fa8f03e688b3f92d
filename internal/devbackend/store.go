// Package devbackend is a local stand-in for the record service. It serves
// the /telescope, /read, /update and /create contract from a sqlite
// database seeded by a CUE fixture.
package devbackend

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// ErrNotFound is returned for unknown records.
var ErrNotFound = errors.New("record not found")

const recordsTable = "records"

const ddl = `CREATE TABLE IF NOT EXISTS records (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_code TEXT NOT NULL,
	entity      TEXT NOT NULL,
	uid         TEXT NOT NULL,
	data        TEXT NOT NULL,
	UNIQUE (schema_code, entity, uid)
)`

// Store keeps records as JSON documents in sqlite.
type Store struct {
	drv *entsql.Driver

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenStore opens the sqlite database at dsn and creates the records table.
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// In-memory databases live per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	drv := entsql.OpenDB(dialect.SQLite, db)
	if err := drv.Exec(ctx, ddl, []any{}, nil); err != nil {
		drv.Close()
		return nil, fmt.Errorf("creating records table: %w", err)
	}
	return &Store{drv: drv, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.drv.Close() }

func (s *Store) newUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

// Insert stores a new record. A string uid on row is kept; otherwise a
// ULID is assigned.
func (s *Store) Insert(ctx context.Context, schemaCode, entity string, row schema.Row) (schema.Row, error) {
	uid := row.ID().String()
	if uid == "" {
		uid = s.newUID()
	}
	data := make(map[string]any, len(row))
	for k, v := range row {
		if k != schema.IdentityField {
			data[k] = v
		}
	}
	doc, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	query, args := builder().Insert(recordsTable).
		Columns("schema_code", "entity", "uid", "data").
		Values(schemaCode, entity, uid, string(doc)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return nil, fmt.Errorf("inserting %s record: %w", entity, err)
	}
	return schema.Row(data).With(schema.IdentityField, uid), nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, schemaCode, entity, uid string) (schema.Row, error) {
	sel := builder().Select("uid", "data").From(entsql.Table(recordsTable)).
		Where(entsql.And(
			entsql.EQ("schema_code", schemaCode),
			entsql.EQ("entity", entity),
			entsql.EQ("uid", uid),
		))
	rows, err := s.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s '%s'", ErrNotFound, entity, uid)
	}
	return rows[0], nil
}

// Update merges data into a record and returns the result.
func (s *Store) Update(ctx context.Context, schemaCode, entity, uid string, data map[string]any) (schema.Row, error) {
	current, err := s.Get(ctx, schemaCode, entity, uid)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(current)+len(data))
	for k, v := range current {
		if k != schema.IdentityField {
			merged[k] = v
		}
	}
	for k, v := range data {
		if k != schema.IdentityField {
			merged[k] = v
		}
	}
	doc, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	query, args := builder().Update(recordsTable).
		Set("data", string(doc)).
		Where(entsql.And(
			entsql.EQ("schema_code", schemaCode),
			entsql.EQ("entity", entity),
			entsql.EQ("uid", uid),
		)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return nil, fmt.Errorf("updating %s '%s': %w", entity, uid, err)
	}
	return schema.Row(merged).With(schema.IdentityField, uid), nil
}

// Query returns records matching filter in insertion order. page counts
// from 1; zero means the first page.
func (s *Store) Query(ctx context.Context, schemaCode, entity string, filter *railgun.Filter, limit, page int) ([]schema.Row, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("schema_code", schemaCode),
		entsql.EQ("entity", entity),
	}
	if filter != nil {
		p, err := filterPredicate(*filter)
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	sel := builder().Select("uid", "data").From(entsql.Table(recordsTable)).
		Where(entsql.And(preds...)).
		OrderBy("seq")
	if limit > 0 {
		sel.Limit(limit)
		if page > 1 {
			sel.Offset((page - 1) * limit)
		}
	}
	return s.query(ctx, sel)
}

func (s *Store) query(ctx context.Context, sel *entsql.Selector) ([]schema.Row, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []schema.Row
	for rows.Next() {
		var uid, doc string
		if err := rows.Scan(&uid, &doc); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		dec := json.NewDecoder(strings.NewReader(doc))
		dec.UseNumber()
		row := schema.Row{}
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("decoding record '%s': %w", uid, err)
		}
		row[schema.IdentityField] = uid
		out = append(out, row)
	}
	return out, rows.Err()
}

// Seed inserts the fixture's records. Records whose uid is already stored
// are left alone, so a file database can be reseeded.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	for code, byEntity := range f.Records {
		for entity, rows := range byEntity {
			for _, row := range rows {
				if uid := row.ID().String(); uid != "" {
					_, err := s.Get(ctx, code, entity, uid)
					if err == nil {
						continue
					}
					if !errors.Is(err, ErrNotFound) {
						return err
					}
				}
				if _, err := s.Insert(ctx, code, entity, row); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// filterPredicate translates a filter group into SQL. Text comparisons are
// case-insensitive.
func filterPredicate(f railgun.Filter) (*entsql.Predicate, error) {
	var preds []*entsql.Predicate
	for _, c := range f.Conditions {
		p, err := conditionPredicate(c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	for _, g := range f.Groups {
		p, err := filterPredicate(g)
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	switch {
	case len(preds) == 0:
		return nil, nil
	case f.Operator == railgun.Or:
		return entsql.Or(preds...), nil
	default:
		return entsql.And(preds...), nil
	}
}

func conditionPredicate(c railgun.Condition) (*entsql.Predicate, error) {
	column := func(b *entsql.Builder) {
		if c.Field == schema.IdentityField {
			b.Ident("uid")
			return
		}
		b.WriteString("json_extract(").Ident("data").WriteString(", ").Arg(`$."` + c.Field + `"`).WriteString(")")
	}
	text := literal(c.Value)
	like := func(negate bool, pattern string) *entsql.Predicate {
		return entsql.P(func(b *entsql.Builder) {
			if negate {
				b.WriteString("(")
				column(b)
				b.WriteString(" IS NULL OR ")
				column(b)
				b.WriteString(" NOT LIKE ")
			} else {
				column(b)
				b.WriteString(" LIKE ")
			}
			b.Arg(pattern).WriteString(` ESCAPE '\'`)
			if negate {
				b.WriteString(")")
			}
		})
	}

	switch c.Operator {
	case railgun.OpIs:
		return entsql.P(func(b *entsql.Builder) {
			b.WriteString("lower(CAST(")
			column(b)
			b.WriteString(" AS TEXT)) = lower(").Arg(text).WriteString(")")
		}), nil
	case railgun.OpIsNot:
		return entsql.P(func(b *entsql.Builder) {
			b.WriteString("(")
			column(b)
			b.WriteString(" IS NULL OR lower(CAST(")
			column(b)
			b.WriteString(" AS TEXT)) <> lower(").Arg(text).WriteString("))")
		}), nil
	case railgun.OpContains:
		return like(false, "%"+escapeLike(text)+"%"), nil
	case railgun.OpNotContains:
		return like(true, "%"+escapeLike(text)+"%"), nil
	case railgun.OpStartsWith:
		return like(false, escapeLike(text)+"%"), nil
	case railgun.OpEndsWith:
		return like(false, "%"+escapeLike(text)), nil
	case railgun.OpGreaterThan, railgun.OpLessThan:
		op := " > "
		if c.Operator == railgun.OpLessThan {
			op = " < "
		}
		var arg any = text
		if n, err := strconv.ParseFloat(text, 64); err == nil {
			arg = n
		}
		return entsql.P(func(b *entsql.Builder) {
			column(b)
			b.WriteString(op).Arg(arg)
		}), nil
	default:
		return nil, fmt.Errorf("unknown filter operator '%s' on '%s'", c.Operator, c.Field)
	}
}

// literal renders a filter value the way sqlite renders stored JSON
// scalars as text.
func literal(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return schema.Text(v)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
