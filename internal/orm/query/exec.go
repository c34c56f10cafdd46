package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/fennec-api/fennec/internal/orm/entity"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// Page is one paginated result set.
type Page struct {
	Data  []*entity.Entity
	Total int64
}

// finalized renders the execution-ready statement: the chained predicates
// plus global scopes, the soft-delete filter for the current mode, and any
// pending aggregate projections and order clauses. The chained builder is
// left untouched so counting and listing can finalize independently.
func (q *Builder) finalized() *sqlb.Builder {
	b := q.b.Clone()

	scopes := q.typ.GlobalScopes(q.disabled)
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Name < scopes[j].Name })
	ops := &scopeOps{b}
	for _, s := range scopes {
		s.Apply(ops)
	}

	if q.typ.SoftDeleteColumn != "" {
		switch q.trash {
		case trashDefault:
			b.WhereNull(q.typ.SoftDeleteColumn)
		case trashOnly:
			b.WhereNotNull(q.typ.SoftDeleteColumn)
		}
	}

	if len(q.aggSelects) > 0 && !q.projected {
		b.SelectRaw(sqlb.Quote(q.typ.Table) + ".*")
	}
	for _, a := range q.aggSelects {
		b.SelectRaw(a.sql, a.args...)
	}
	for _, a := range q.aggOrders {
		b.OrderByRaw(a.sql, a.args...)
	}
	return b
}

// execute runs the statement, hydrates the rows, and resolves the eager-load
// tree. The result is never nil.
func (q *Builder) execute(ctx context.Context, b *sqlb.Builder) ([]*entity.Entity, error) {
	rows, err := b.Get(ctx, q.db)
	if err != nil {
		return nil, entity.ConvertDBError(err)
	}

	entities := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, entity.Hydrate(q.typ, q.db, row))
	}

	if !q.expand.Empty() {
		if err := q.loader.Load(ctx, entities, q.expand); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// Get executes the query and returns the hydrated, eager-loaded entities.
func (q *Builder) Get(ctx context.Context) ([]*entity.Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.execute(ctx, q.finalized())
}

// GetExternal executes the query and renders each entity externally,
// applying the selected formatter.
func (q *Builder) GetExternal(ctx context.Context) ([]map[string]any, error) {
	entities, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	return q.external(entities), nil
}

func (q *Builder) external(entities []*entity.Entity) []map[string]any {
	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		item := e.ToExternal()
		if q.formatter != nil {
			item = q.formatter(item)
		}
		out = append(out, item)
	}
	return out
}

// Paginate executes the query pipeline alongside a COUNT(*) over the same
// predicates and returns one page. A zero total short-circuits without
// running the list query.
func (q *Builder) Paginate(ctx context.Context, page, limit int) (*Page, error) {
	if q.err != nil {
		return nil, q.err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	total, err := q.finalized().Count(ctx, q.db)
	if err != nil {
		return nil, entity.ConvertDBError(err)
	}
	if total == 0 {
		return &Page{Data: []*entity.Entity{}}, nil
	}

	b := q.finalized().Limit(limit).Offset((page - 1) * limit)
	entities, err := q.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	return &Page{Data: entities, Total: total}, nil
}

// Option projects a two-column (value, label) shape for dropdown use. With
// no explicit columns it falls back to the primary key and the first
// selectable non-key column.
func (q *Builder) Option(ctx context.Context, columns ...string) ([]map[string]any, error) {
	if q.err != nil {
		return nil, q.err
	}

	value, label := q.optionColumns(columns)
	b := q.finalized().
		ClearSelect().
		SelectRaw(sqlb.Quote(value) + " AS value").
		SelectRaw(sqlb.Quote(label) + " AS label")

	rows, err := b.Get(ctx, q.db)
	if err != nil {
		return nil, entity.ConvertDBError(err)
	}
	return rows, nil
}

func (q *Builder) optionColumns(columns []string) (value, label string) {
	switch len(columns) {
	case 0:
	case 1:
		return columns[0], columns[0]
	default:
		return columns[0], columns[1]
	}

	value = q.typ.PrimaryKey
	label = value
	for _, name := range q.typ.SelectableFields() {
		if name != q.typ.PrimaryKey {
			label = name
			break
		}
	}
	return value, label
}

// Find executes a primary-key lookup within the active scopes and returns
// nil when no row matches.
func (q *Builder) Find(ctx context.Context, id any) (*entity.Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	b := q.finalized().Where(q.typ.PrimaryKey, "=", id).Limit(1)
	entities, err := q.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FindOrNotFound is Find raising ErrNotFound instead of returning nil.
func (q *Builder) FindOrNotFound(ctx context.Context, id any) (*entity.Entity, error) {
	e, err := q.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s %v: %w", q.typ.Name, id, entity.ErrNotFound)
	}
	return e, nil
}

// FirstOrNotFound returns the first row within the active scopes and
// ordering, raising ErrNotFound when there is none.
func (q *Builder) FirstOrNotFound(ctx context.Context) (*entity.Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	entities, err := q.execute(ctx, q.finalized().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%s: %w", q.typ.Name, entity.ErrNotFound)
	}
	return entities[0], nil
}
