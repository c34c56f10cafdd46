package query

import (
	"fmt"
	"strings"

	"github.com/fennec-api/fennec/internal/orm/relationships"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// relationSubquery builds the correlated subquery skeleton for one relation
// hop: the target (or pivot-joined target) table filtered down to the rows
// belonging to the parent row, within the target's default soft-delete scope.
func relationSubquery(parentTable string, rel *schema.Relation) (*sqlb.Builder, *schema.EntityType, error) {
	target, err := rel.Target()
	if err != nil {
		return nil, nil, err
	}

	var sub *sqlb.Builder
	switch rel.Kind {
	case schema.BelongsTo:
		sub = sqlb.New(target.Table).WhereRaw(
			sqlb.Quote(target.Table+"."+rel.LocalKey) + " = " + sqlb.Quote(parentTable+"."+rel.ForeignKey))
	case schema.HasOne, schema.HasMany:
		sub = sqlb.New(target.Table).WhereRaw(
			sqlb.Quote(target.Table+"."+rel.ForeignKey) + " = " + sqlb.Quote(parentTable+"."+rel.LocalKey))
	case schema.BelongsToMany:
		sub = sqlb.New(rel.PivotTable).
			Join(target.Table, sqlb.Quote(rel.PivotTable+"."+rel.PivotForeignKey)+" = "+sqlb.Quote(target.Table+"."+target.PrimaryKey)).
			WhereRaw(sqlb.Quote(rel.PivotTable+"."+rel.PivotLocalKey) + " = " + sqlb.Quote(parentTable+"."+rel.LocalKey))
	default:
		return nil, nil, fmt.Errorf("unsupported relation kind %s", rel.Kind)
	}

	if target.SoftDeleteColumn != "" {
		sub.WhereNull(target.Table + "." + target.SoftDeleteColumn)
	}
	return sub, target, nil
}

// existsFragment renders an EXISTS predicate over a dotted relation path,
// applying cb to the final segment's subquery.
func (q *Builder) existsFragment(path string, cb relationships.Constraint) (string, []any, error) {
	return existsOver(q.typ, q.typ.Table, strings.Split(path, "."), func(_ *schema.EntityType, sub *sqlb.Builder) {
		if cb != nil {
			cb(sub)
		}
	})
}

// existsColumnFragment is existsFragment specialized for search and filter:
// the predicate applies to one column of the path's final target, qualified
// with the target table so pivot joins stay unambiguous.
func (q *Builder) existsColumnFragment(path, column string, apply func(sub *sqlb.Builder, qualified string)) (string, []any, error) {
	return existsOver(q.typ, q.typ.Table, strings.Split(path, "."), func(target *schema.EntityType, sub *sqlb.Builder) {
		apply(sub, target.Table+"."+column)
	})
}

func existsOver(t *schema.EntityType, parentTable string, segments []string, leaf func(*schema.EntityType, *sqlb.Builder)) (string, []any, error) {
	rel, err := t.LookupRelation(segments[0])
	if err != nil {
		return "", nil, err
	}
	sub, target, err := relationSubquery(parentTable, rel)
	if err != nil {
		return "", nil, err
	}

	if len(segments) > 1 {
		frag, args, err := existsOver(target, target.Table, segments[1:], leaf)
		if err != nil {
			return "", nil, err
		}
		sub.WhereRaw(frag, args...)
	} else {
		leaf(target, sub)
	}

	sql, args := sub.SubquerySQL("1")
	return "EXISTS (" + sql + ")", args, nil
}

var aggregateFns = map[string]string{
	"count": "COUNT",
	"sum":   "SUM",
	"avg":   "AVG",
	"min":   "MIN",
	"max":   "MAX",
}

// aggregateFragment renders a correlated scalar subquery aggregating over a
// relation, plus its conventional alias (<relation>_<fn>).
func (q *Builder) aggregateFragment(relation, fn, column string, cb relationships.Constraint) (string, []any, string, error) {
	name := strings.ToLower(strings.TrimSpace(fn))
	sqlFn, ok := aggregateFns[name]
	if !ok {
		return "", nil, "", fmt.Errorf("%w: %q", ErrUnsupportedAggregate, fn)
	}

	rel, err := q.typ.LookupRelation(relation)
	if err != nil {
		return "", nil, "", err
	}
	sub, target, err := relationSubquery(q.typ.Table, rel)
	if err != nil {
		return "", nil, "", err
	}

	projection := "COUNT(*)"
	if name != "count" {
		if column == "" {
			return "", nil, "", fmt.Errorf("%w: %s requires a column", ErrUnsupportedAggregate, name)
		}
		projection = sqlFn + "(" + sqlb.Quote(target.Table+"."+column) + ")"
	}

	if cb != nil {
		cb(sub)
	}

	sql, args := sub.SubquerySQL(projection)
	return "(" + sql + ")", args, relation + "_" + name, nil
}

// WithAggregate projects a correlated aggregate over a relation as an
// aliased column named <relation>_<fn>. The column is ignored for count.
func (q *Builder) WithAggregate(relation, fn, column string, cb relationships.Constraint) *Builder {
	if q.err != nil {
		return q
	}
	frag, args, alias, err := q.aggregateFragment(relation, fn, column, cb)
	if err != nil {
		return q.fail(err)
	}
	q.aggSelects = append(q.aggSelects, rawFragment{
		sql:  frag + " AS " + sqlb.Quote(alias),
		args: args,
	})
	return q
}

// OrderByAggregate orders results by a correlated aggregate over a relation.
func (q *Builder) OrderByAggregate(relation, fn, column, direction string, cb relationships.Constraint) *Builder {
	if q.err != nil {
		return q
	}
	frag, args, _, err := q.aggregateFragment(relation, fn, column, cb)
	if err != nil {
		return q.fail(err)
	}
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	q.aggOrders = append(q.aggOrders, rawFragment{sql: frag + " " + dir, args: args})
	return q
}
