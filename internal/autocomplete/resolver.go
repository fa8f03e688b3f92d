// Package autocomplete resolves options for reference and enumerated
// fields.
//
// Reference search is federated: one prefix query per permissible entity
// type, run concurrently. A failing type contributes no options and never
// fails the search as a whole.
package autocomplete

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// DefaultLimit caps the options returned per entity type.
const DefaultLimit = 10

// KindReference marks options that carry a record reference.
const KindReference = "reference"

// Reader queries records of one entity type.
type Reader interface {
	Read(ctx context.Context, snap *schema.Snapshot, entity string, req railgun.ReadRequest) ([]schema.Row, error)
}

// Candidate is an entity type a reference field may point at.
type Candidate struct {
	Type   string
	Params []byte
}

// Option is a single selectable suggestion.
type Option struct {
	Label string           `json:"label"`
	Kind  string           `json:"kind"`
	Value schema.Reference `json:"value"`
}

// CandidatesOf returns the permissible target types of a reference field in
// schema order.
func CandidatesOf(fd schema.FieldDescriptor) []Candidate {
	out := make([]Candidate, 0, len(fd.Params.Targets))
	for _, t := range fd.Params.Targets {
		out = append(out, Candidate{Type: t, Params: fd.Params.TargetParams[t]})
	}
	return out
}

// NoOptionsMessage is the hint shown before anything has been typed.
func NoOptionsMessage(candidates []Candidate) string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Type
	}
	return fmt.Sprintf("Find a %s by typing its name.", strings.Join(names, ". "))
}

// Resolver runs federated reference searches.
type Resolver struct {
	reader   Reader
	limit    int
	parallel int
	logger   *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLimit sets the per-type result cap.
func WithLimit(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithParallelism bounds concurrent per-type requests. Zero means one
// request per candidate at once.
func WithParallelism(n int) ResolverOption {
	return func(r *Resolver) { r.parallel = n }
}

// WithLogger sets the logger for per-type failures.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver reading through reader.
func New(reader Reader, opts ...ResolverOption) *Resolver {
	r := &Resolver{reader: reader, limit: DefaultLimit, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Search queries every candidate type for records whose display-name field
// starts with prefix and concatenates the results. Types absent from snap,
// or whose request fails, contribute nothing. No order is guaranteed
// between types.
func (r *Resolver) Search(ctx context.Context, snap *schema.Snapshot, candidates []Candidate, prefix string) []Option {
	results := make([][]Option, len(candidates))

	var g errgroup.Group
	if r.parallel > 0 {
		g.SetLimit(r.parallel)
	}
	for i, c := range candidates {
		col := snap.DisplayNameCol(c.Type)
		if col == "" {
			r.logger.Debug("autocomplete: unknown candidate type", zap.String("type", c.Type))
			continue
		}
		g.Go(func() error {
			rows, err := r.reader.Read(ctx, snap, c.Type, railgun.ReadRequest{
				Filters:      railgun.StartsWith(col, prefix),
				ReturnFields: []string{col},
				Pagination:   r.limit,
			})
			if err != nil {
				r.logger.Debug("autocomplete: candidate search failed",
					zap.String("type", c.Type),
					zap.String("prefix", prefix),
					zap.Error(err),
				)
				return nil
			}
			results[i] = toOptions(c.Type, col, rows, r.limit)
			return nil
		})
	}
	_ = g.Wait()

	var out []Option
	for _, opts := range results {
		out = append(out, opts...)
	}
	return out
}

func toOptions(entityType, col string, rows []schema.Row, limit int) []Option {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]Option, 0, len(rows))
	for _, row := range rows {
		ref := schema.Reference{
			Type:       entityType,
			UID:        row.ID(),
			Display:    schema.Text(row[col]),
			DisplayCol: col,
		}
		out = append(out, Option{Label: ref.Label(), Kind: KindReference, Value: ref})
	}
	return out
}

// FilterOptions returns the enumerated options of a LIST field that start
// with prefix, case-insensitively, in declared order.
func FilterOptions(fd schema.FieldDescriptor, prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, o := range fd.Params.Options {
		if strings.HasPrefix(strings.ToLower(o), lower) {
			out = append(out, o)
		}
	}
	return out
}
