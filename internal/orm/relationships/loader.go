package relationships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fennec-api/fennec/internal/orm/entity"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// maxDepth bounds expand tree recursion.
const maxDepth = 10

// ErrExpandTooDeep indicates an expand tree deeper than the loader allows.
var ErrExpandTooDeep = errors.New("relation expansion exceeds maximum depth")

// parentKeyColumn carries the pivot's owner key alongside each many-to-many
// child row so children can be grouped back onto their parents.
const parentKeyColumn = "__parent_id"

// Loader batch-loads relations for sets of hydrated entities.
type Loader struct {
	db *sql.DB
}

// NewLoader creates a loader issuing its queries against the given pool.
func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load resolves the expand tree against the parent set. Each tree node costs
// one query regardless of the number of parents. Parents always end up with
// the relation key set: nil (or an empty collection) when nothing matched.
func (l *Loader) Load(ctx context.Context, parents []*entity.Entity, tree *Node) error {
	return l.load(ctx, parents, tree, 0)
}

func (l *Loader) load(ctx context.Context, parents []*entity.Entity, tree *Node, depth int) error {
	if tree == nil || tree.Empty() || len(parents) == 0 {
		return nil
	}
	if depth >= maxDepth {
		return fmt.Errorf("%w (%d)", ErrExpandTooDeep, maxDepth)
	}

	for _, name := range tree.Names() {
		rel, err := parents[0].Type().LookupRelation(name)
		if err != nil {
			return err
		}
		node := tree.Child(name)

		children, err := l.loadRelation(ctx, parents, rel, node.callback)
		if err != nil {
			return fmt.Errorf("load %s.%s: %w", rel.Owner().Name, name, err)
		}
		if err := l.load(ctx, children, node, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// loadRelation runs the single batch query for one relation and attaches the
// results to every parent. It returns the loaded children so nested expand
// levels can recurse over them.
func (l *Loader) loadRelation(ctx context.Context, parents []*entity.Entity, rel *schema.Relation, cb Constraint) ([]*entity.Entity, error) {
	target, err := rel.Target()
	if err != nil {
		return nil, err
	}

	switch rel.Kind {
	case schema.BelongsTo:
		return l.loadBelongsTo(ctx, parents, rel, target, cb)
	case schema.HasOne, schema.HasMany:
		return l.loadHas(ctx, parents, rel, target, cb)
	case schema.BelongsToMany:
		return l.loadBelongsToMany(ctx, parents, rel, target, cb)
	default:
		return nil, fmt.Errorf("unsupported relation kind %s", rel.Kind)
	}
}

func (l *Loader) loadBelongsTo(ctx context.Context, parents []*entity.Entity, rel *schema.Relation, target *schema.EntityType, cb Constraint) ([]*entity.Entity, error) {
	keys := distinctKeys(parents, rel.ForeignKey)
	rows, err := l.fetch(ctx, target, rel.LocalKey, keys, cb)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*entity.Entity, len(rows))
	children := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		child := entity.Hydrate(target, l.db, row)
		byKey[stringify(row[rel.LocalKey])] = child
		children = append(children, child)
	}

	for _, parent := range parents {
		if child, ok := byKey[stringify(parent.Get(rel.ForeignKey))]; ok {
			parent.SetRelation(rel.Name, child)
		} else {
			parent.SetRelation(rel.Name, nil)
		}
	}
	return children, nil
}

func (l *Loader) loadHas(ctx context.Context, parents []*entity.Entity, rel *schema.Relation, target *schema.EntityType, cb Constraint) ([]*entity.Entity, error) {
	keys := distinctKeys(parents, rel.LocalKey)
	rows, err := l.fetch(ctx, target, rel.ForeignKey, keys, cb)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*entity.Entity)
	children := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		child := entity.Hydrate(target, l.db, row)
		k := stringify(row[rel.ForeignKey])
		grouped[k] = append(grouped[k], child)
		children = append(children, child)
	}

	for _, parent := range parents {
		matches := grouped[stringify(parent.Get(rel.LocalKey))]
		if rel.Kind == schema.HasOne {
			if len(matches) > 0 {
				parent.SetRelation(rel.Name, matches[0])
			} else {
				parent.SetRelation(rel.Name, nil)
			}
			continue
		}
		if matches == nil {
			matches = []*entity.Entity{}
		}
		parent.SetRelation(rel.Name, matches)
	}
	return children, nil
}

func (l *Loader) loadBelongsToMany(ctx context.Context, parents []*entity.Entity, rel *schema.Relation, target *schema.EntityType, cb Constraint) ([]*entity.Entity, error) {
	keys := distinctKeys(parents, rel.LocalKey)
	if len(keys) == 0 {
		for _, parent := range parents {
			parent.SetRelation(rel.Name, []*entity.Entity{})
		}
		return nil, nil
	}

	pivotOwner := rel.PivotTable + "." + rel.PivotLocalKey
	pivotTarget := rel.PivotTable + "." + rel.PivotForeignKey
	targetKey := target.Table + "." + target.PrimaryKey

	b := sqlb.New(target.Table).
		SelectRaw(sqlb.Quote(target.Table)+".*").
		SelectRaw(sqlb.Quote(pivotOwner)+" AS "+parentKeyColumn).
		Join(rel.PivotTable, sqlb.Quote(pivotTarget)+" = "+sqlb.Quote(targetKey)).
		WhereIn(pivotOwner, keys)
	if target.SoftDeleteColumn != "" {
		b.WhereNull(target.Table + "." + target.SoftDeleteColumn)
	}
	if cb != nil {
		cb(b)
	}

	rows, err := b.Get(ctx, l.db)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*entity.Entity)
	children := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		parentKey := stringify(row[parentKeyColumn])
		delete(row, parentKeyColumn)
		child := entity.Hydrate(target, l.db, row)
		grouped[parentKey] = append(grouped[parentKey], child)
		children = append(children, child)
	}

	for _, parent := range parents {
		matches := grouped[stringify(parent.Get(rel.LocalKey))]
		if matches == nil {
			matches = []*entity.Entity{}
		}
		parent.SetRelation(rel.Name, matches)
	}
	return children, nil
}

// fetch runs the batch SELECT for one-to-one/many relations: all target rows
// whose join column falls in the parent key set, within the target's default
// soft-delete scope and any node constraint.
func (l *Loader) fetch(ctx context.Context, target *schema.EntityType, column string, keys []any, cb Constraint) ([]map[string]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	b := sqlb.New(target.Table).WhereIn(column, keys)
	if target.SoftDeleteColumn != "" {
		b.WhereNull(target.SoftDeleteColumn)
	}
	if cb != nil {
		cb(b)
	}
	return b.Get(ctx, l.db)
}

// distinctKeys collects the non-nil distinct values of a parent column,
// preserving first-seen order.
func distinctKeys(parents []*entity.Entity, column string) []any {
	seen := make(map[string]bool, len(parents))
	var keys []any
	for _, parent := range parents {
		v := parent.Get(column)
		if v == nil {
			continue
		}
		k := stringify(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}

// stringify normalizes join key values across numeric representations, so an
// int64 from storage matches the float64 a number cast produces.
func stringify(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	case []byte:
		return string(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
