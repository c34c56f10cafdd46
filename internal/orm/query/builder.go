// Package query is the high-level query surface of the ORM: declarative
// search/filter/sort/select operations, relation-existence predicates,
// named scopes, correlated aggregates, soft-delete modes, eager-load
// declaration, pagination, and the resolve entry point controllers drive
// from a request parameter bag.
package query

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/fennec-api/fennec/internal/orm/relationships"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// trashMode selects soft-delete row visibility for one builder instance.
type trashMode int

const (
	trashDefault trashMode = iota // exclude soft-deleted rows
	trashWith                     // no soft-delete filtering
	trashOnly                     // only soft-deleted rows
)

type rawFragment struct {
	sql  string
	args []any
}

// Builder chains declarative operations against one entity type and tracks
// the extension state (expand tree, soft-delete mode, pending aggregates,
// formatter, suppressed global scopes) the base SQL builder knows nothing
// about. The first configuration error sticks and surfaces at execution.
type Builder struct {
	typ    *schema.EntityType
	db     *sql.DB
	b      *sqlb.Builder
	loader *relationships.Loader

	expand     *relationships.Node
	trash      trashMode
	aggSelects []rawFragment
	aggOrders  []rawFragment
	formatter  schema.Formatter
	disabled   map[string]bool

	projected bool
	err       error
}

// NewBuilder creates a query builder bound to an entity type and pool.
func NewBuilder(t *schema.EntityType, db *sql.DB) *Builder {
	return &Builder{
		typ:      t,
		db:       db,
		b:        sqlb.New(t.Table),
		loader:   relationships.NewLoader(db),
		expand:   relationships.NewTree(),
		disabled: make(map[string]bool),
	}
}

// Type returns the entity type the builder queries.
func (q *Builder) Type() *schema.EntityType { return q.typ }

// SQL exposes the underlying statement builder for raw composition.
func (q *Builder) SQL() *sqlb.Builder { return q.b }

func (q *Builder) fail(err error) *Builder {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Search ORs case-insensitive partial matches over a field set. A non-empty
// searchable list replaces the entity's default searchable fields entirely;
// otherwise the defaults are unioned with the request includes. A dotted name
// becomes an EXISTS predicate on the relation instead of a direct column
// match. An empty keyword is a no-op.
func (q *Builder) Search(keyword string, searchable, includes []string) *Builder {
	if q.err != nil || strings.TrimSpace(keyword) == "" {
		return q
	}

	fields := searchable
	if len(fields) == 0 {
		fields = mergeFields(q.typ.SearchableFields(), includes)
	}
	if len(fields) == 0 {
		return q
	}
	pattern := "%" + keyword + "%"

	q.b.WhereGroup(func(g *sqlb.Builder) {
		for _, field := range fields {
			if relation, column, ok := splitDotted(field); ok {
				frag, args, err := q.existsColumnFragment(relation, column, func(sub *sqlb.Builder, qualified string) {
					sub.Where(qualified, "ILIKE", pattern)
				})
				if err != nil {
					q.fail(err)
					return
				}
				g.OrWhereRaw(frag, args...)
				continue
			}
			g.OrWhere(field, "ILIKE", pattern)
		}
	})
	return q
}

// Filter applies `op:value` expressions per field. Supported operations:
// eq, ne, in, ni (comma-separated lists), bw ("min,max"), li (partial
// match). A value without an operation prefix is an equality match. Dotted
// field names route through a relation EXISTS predicate.
func (q *Builder) Filter(filters map[string]string) *Builder {
	if q.err != nil || len(filters) == 0 {
		return q
	}

	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		op, value := splitFilter(filters[field])
		if relation, column, ok := splitDotted(field); ok {
			frag, args, err := q.existsColumnFragment(relation, column, func(sub *sqlb.Builder, qualified string) {
				if err := applyFilter(sub, qualified, op, value); err != nil {
					q.fail(err)
				}
			})
			if err != nil {
				return q.fail(err)
			}
			q.b.WhereRaw(frag, args...)
			continue
		}
		if err := applyFilter(q.b, field, op, value); err != nil {
			return q.fail(err)
		}
	}
	return q
}

func splitFilter(expr string) (string, string) {
	if op, value, ok := strings.Cut(expr, ":"); ok {
		return op, value
	}
	return "eq", expr
}

func applyFilter(b *sqlb.Builder, column, op, value string) error {
	switch op {
	case "eq":
		b.Where(column, "=", value)
	case "ne":
		b.Where(column, "!=", value)
	case "li":
		b.Where(column, "ILIKE", "%"+value+"%")
	case "in":
		b.WhereIn(column, csvValues(value))
	case "ni":
		b.WhereNotIn(column, csvValues(value))
	case "bw":
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("%w: bw expects \"min,max\", got %q", ErrUnsupportedFilterOp, value)
		}
		b.WhereBetween(column, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFilterOp, op)
	}
	return nil
}

func csvValues(value string) []any {
	parts := strings.Split(value, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Selects projects the explicit field list when non-empty, else the entity's
// default selectable set unioned with includes.
func (q *Builder) Selects(fields []string, includes ...string) *Builder {
	if q.err != nil {
		return q
	}
	if len(fields) == 0 {
		fields = mergeFields(q.typ.SelectableFields(), includes)
	}
	if len(fields) == 0 {
		return q
	}
	q.b.Select(fields...)
	q.projected = true
	return q
}

// Sorts applies "column dir" terms; a missing or invalid direction defaults
// to ascending.
func (q *Builder) Sorts(terms []string) *Builder {
	if q.err != nil {
		return q
	}
	for _, term := range terms {
		column, dir, _ := strings.Cut(strings.TrimSpace(term), " ")
		if column == "" {
			continue
		}
		q.b.OrderBy(column, strings.TrimSpace(dir))
	}
	return q
}

// Expand merges dotted relation paths into the eager-load tree.
func (q *Builder) Expand(paths ...string) *Builder {
	for _, p := range paths {
		q.expand.Add(p, nil)
	}
	return q
}

// ExpandWith merges one path and attaches a constraint to its final node.
func (q *Builder) ExpandWith(path string, cb relationships.Constraint) *Builder {
	q.expand.Add(path, cb)
	return q
}

// WithTrashed lifts the default soft-delete exclusion.
func (q *Builder) WithTrashed() *Builder {
	q.trash = trashWith
	return q
}

// OnlyTrashed restricts results to soft-deleted rows.
func (q *Builder) OnlyTrashed() *Builder {
	q.trash = trashOnly
	return q
}

// Scope invokes a registered internal-mode scope against the builder.
func (q *Builder) Scope(name string, args ...any) *Builder {
	if q.err != nil {
		return q
	}
	s, ok := q.typ.LookupScope(name)
	if !ok {
		return q.fail(fmt.Errorf("%w: %s.%s", ErrUnknownScope, q.typ.Name, name))
	}
	s.Apply(&scopeOps{q.b}, args...)
	return q
}

// WithoutScope suppresses named global-mode scopes for this builder.
func (q *Builder) WithoutScope(names ...string) *Builder {
	for _, name := range names {
		q.disabled[name] = true
	}
	return q
}

// Format selects a named result formatter applied to the external
// representation of every returned item.
func (q *Builder) Format(name string) *Builder {
	if q.err != nil {
		return q
	}
	fn, err := q.typ.LookupFormatter(name)
	if err != nil {
		return q.fail(err)
	}
	q.formatter = fn
	return q
}

// WhereHas adds an EXISTS predicate over a dotted relation path, optionally
// constrained by cb on the final segment's query.
func (q *Builder) WhereHas(path string, cb relationships.Constraint) *Builder {
	return q.whereHas(path, cb, false, false)
}

// OrWhereHas is WhereHas with OR composition.
func (q *Builder) OrWhereHas(path string, cb relationships.Constraint) *Builder {
	return q.whereHas(path, cb, false, true)
}

// WhereDoesntHave adds a NOT EXISTS predicate over a dotted relation path.
func (q *Builder) WhereDoesntHave(path string, cb relationships.Constraint) *Builder {
	return q.whereHas(path, cb, true, false)
}

// OrWhereDoesntHave is WhereDoesntHave with OR composition.
func (q *Builder) OrWhereDoesntHave(path string, cb relationships.Constraint) *Builder {
	return q.whereHas(path, cb, true, true)
}

func (q *Builder) whereHas(path string, cb relationships.Constraint, negate, or bool) *Builder {
	if q.err != nil {
		return q
	}
	frag, args, err := q.existsFragment(path, cb)
	if err != nil {
		return q.fail(err)
	}
	if negate {
		frag = "NOT " + frag
	}
	if or {
		q.b.OrWhereRaw(frag, args...)
	} else {
		q.b.WhereRaw(frag, args...)
	}
	return q
}

// scopeOps adapts the statement builder to the narrow surface scope
// functions are written against.
type scopeOps struct {
	b *sqlb.Builder
}

var _ schema.QueryOps = (*scopeOps)(nil)

func (s *scopeOps) Where(column, operator string, value any)   { s.b.Where(column, operator, value) }
func (s *scopeOps) OrWhere(column, operator string, value any) { s.b.OrWhere(column, operator, value) }
func (s *scopeOps) WhereIn(column string, values []any)        { s.b.WhereIn(column, values) }
func (s *scopeOps) WhereNull(column string)                    { s.b.WhereNull(column) }
func (s *scopeOps) WhereNotNull(column string)                 { s.b.WhereNotNull(column) }
func (s *scopeOps) OrderBy(column, direction string)           { s.b.OrderBy(column, direction) }
func (s *scopeOps) Limit(n int)                                { s.b.Limit(n) }

func splitDotted(field string) (relation, column string, ok bool) {
	i := strings.LastIndex(field, ".")
	if i < 0 {
		return "", "", false
	}
	return field[:i], field[i+1:], true
}

// mergeFields unions two field lists preserving first-seen order.
func mergeFields(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, lists := range [][]string{base, extra} {
		for _, f := range lists {
			f = strings.TrimSpace(f)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
