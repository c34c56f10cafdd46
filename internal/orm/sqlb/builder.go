// Package sqlb is the capability-constrained SQL builder the ORM core is
// layered on: select/where/join/order/limit composition, cloning, counting,
// insert/update/delete with RETURNING, and embedding of correlated subqueries
// as raw fragments. Conditions are accumulated with ? placeholders and
// rewritten to $n bindings when the final statement is rendered, which lets a
// subquery's SQL be spliced into a parent builder without renumbering.
package sqlb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// validOperators is the allowlist for comparison operators accepted by Where.
var validOperators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "ILIKE": true, "NOT LIKE": true, "NOT ILIKE": true,
}

type expr struct {
	sql  string
	args []any
}

type cond struct {
	sql  string
	args []any
	or   bool
}

// Builder accumulates one SELECT/UPDATE/DELETE statement against a table.
type Builder struct {
	table   string
	selects []expr
	conds   []cond
	joins   []string
	orders  []expr
	limit   *int
	offset  *int
}

// New creates a builder bound to a table.
func New(table string) *Builder {
	return &Builder{table: table}
}

// Table returns the table the builder is bound to.
func (b *Builder) Table() string { return b.table }

// Quote quotes an identifier, handling qualified table.column names.
func Quote(ident string) string {
	if strings.Contains(ident, ".") {
		parts := strings.SplitN(ident, ".", 2)
		return pq.QuoteIdentifier(parts[0]) + "." + pq.QuoteIdentifier(parts[1])
	}
	return pq.QuoteIdentifier(ident)
}

// Select replaces the projection with the given columns.
func (b *Builder) Select(columns ...string) *Builder {
	b.selects = b.selects[:0]
	for _, c := range columns {
		b.selects = append(b.selects, expr{sql: Quote(c)})
	}
	return b
}

// SelectRaw appends a raw projection expression with ? placeholders.
func (b *Builder) SelectRaw(sql string, args ...any) *Builder {
	b.selects = append(b.selects, expr{sql: sql, args: args})
	return b
}

// ClearSelect drops any explicit projection, restoring SELECT *.
func (b *Builder) ClearSelect() *Builder {
	b.selects = b.selects[:0]
	return b
}

// Where adds an AND condition using an allowlisted comparison operator.
func (b *Builder) Where(column, operator string, value any) *Builder {
	return b.where(column, operator, value, false)
}

// OrWhere adds an OR condition using an allowlisted comparison operator.
func (b *Builder) OrWhere(column, operator string, value any) *Builder {
	return b.where(column, operator, value, true)
}

func (b *Builder) where(column, operator string, value any, or bool) *Builder {
	op := strings.ToUpper(strings.TrimSpace(operator))
	if !validOperators[op] {
		panic(fmt.Sprintf("sqlb: unsupported operator %q", operator))
	}
	b.conds = append(b.conds, cond{
		sql:  fmt.Sprintf("%s %s ?", Quote(column), op),
		args: []any{value},
		or:   or,
	})
	return b
}

// WhereRaw adds a raw AND condition with ? placeholders.
func (b *Builder) WhereRaw(sql string, args ...any) *Builder {
	b.conds = append(b.conds, cond{sql: sql, args: args})
	return b
}

// OrWhereRaw adds a raw OR condition with ? placeholders.
func (b *Builder) OrWhereRaw(sql string, args ...any) *Builder {
	b.conds = append(b.conds, cond{sql: sql, args: args, or: true})
	return b
}

// WhereIn adds an IN condition. An empty value list renders FALSE.
func (b *Builder) WhereIn(column string, values []any) *Builder {
	b.conds = append(b.conds, inCond(column, values, false))
	return b
}

// WhereNotIn adds a NOT IN condition. An empty value list renders TRUE.
func (b *Builder) WhereNotIn(column string, values []any) *Builder {
	b.conds = append(b.conds, inCond(column, values, true))
	return b
}

func inCond(column string, values []any, negate bool) cond {
	if len(values) == 0 {
		if negate {
			return cond{sql: "TRUE"}
		}
		return cond{sql: "FALSE"}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	kw := "IN"
	if negate {
		kw = "NOT IN"
	}
	return cond{
		sql:  fmt.Sprintf("%s %s (%s)", Quote(column), kw, placeholders),
		args: values,
	}
}

// WhereNull adds an IS NULL condition.
func (b *Builder) WhereNull(column string) *Builder {
	b.conds = append(b.conds, cond{sql: Quote(column) + " IS NULL"})
	return b
}

// WhereNotNull adds an IS NOT NULL condition.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.conds = append(b.conds, cond{sql: Quote(column) + " IS NOT NULL"})
	return b
}

// WhereBetween adds a BETWEEN condition.
func (b *Builder) WhereBetween(column string, min, max any) *Builder {
	b.conds = append(b.conds, cond{
		sql:  Quote(column) + " BETWEEN ? AND ?",
		args: []any{min, max},
	})
	return b
}

// WhereGroup adds a parenthesized AND group built by fn.
func (b *Builder) WhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(fn, false)
}

// OrWhereGroup adds a parenthesized OR group built by fn.
func (b *Builder) OrWhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(fn, true)
}

func (b *Builder) whereGroup(fn func(*Builder), or bool) *Builder {
	group := New(b.table)
	fn(group)
	sql, args := group.condSQL()
	if sql == "" {
		return b
	}
	b.conds = append(b.conds, cond{sql: "(" + sql + ")", args: args, or: or})
	return b
}

// Join adds an INNER JOIN with a raw ON clause of already-quoted identifiers.
func (b *Builder) Join(table, on string) *Builder {
	b.joins = append(b.joins, fmt.Sprintf("INNER JOIN %s ON %s", Quote(table), on))
	return b
}

// OrderBy appends an ORDER BY term; invalid directions fall back to ASC.
func (b *Builder) OrderBy(column, direction string) *Builder {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	b.orders = append(b.orders, expr{sql: Quote(column) + " " + dir})
	return b
}

// OrderByRaw appends a raw ORDER BY expression with ? placeholders.
func (b *Builder) OrderByRaw(sql string, args ...any) *Builder {
	b.orders = append(b.orders, expr{sql: sql, args: args})
	return b
}

// ClearOrder drops all ORDER BY terms.
func (b *Builder) ClearOrder() *Builder {
	b.orders = b.orders[:0]
	return b
}

// Limit sets the LIMIT clause.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Offset sets the OFFSET clause.
func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// ClearLimit drops LIMIT and OFFSET.
func (b *Builder) ClearLimit() *Builder {
	b.limit = nil
	b.offset = nil
	return b
}

// Clone copies the builder, sharing no mutable state with the original.
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		table:   b.table,
		selects: append([]expr(nil), b.selects...),
		conds:   append([]cond(nil), b.conds...),
		joins:   append([]string(nil), b.joins...),
		orders:  append([]expr(nil), b.orders...),
	}
	if b.limit != nil {
		n := *b.limit
		clone.limit = &n
	}
	if b.offset != nil {
		n := *b.offset
		clone.offset = &n
	}
	return clone
}

// condSQL renders the WHERE conditions with ? placeholders.
func (b *Builder) condSQL() (string, []any) {
	var sb strings.Builder
	var args []any
	for i, c := range b.conds {
		if i > 0 {
			if c.or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		sb.WriteString(c.sql)
		args = append(args, c.args...)
	}
	return sb.String(), args
}

// ToSQL renders the SELECT statement with $n bindings.
func (b *Builder) ToSQL() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(b.selects) == 0 {
		sb.WriteString("*")
	} else {
		for i, s := range b.selects {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.sql)
			args = append(args, s.args...)
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(Quote(b.table))

	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}

	if where, whereArgs := b.condSQL(); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.sql)
			args = append(args, o.args...)
		}
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT ?")
		args = append(args, *b.limit)
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ?")
		args = append(args, *b.offset)
	}

	return bind(sb.String()), args
}

// CountSQL renders a COUNT(*) statement over the same predicates, ignoring
// projection, ordering and limits.
func (b *Builder) CountSQL() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(Quote(b.table))
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where, whereArgs := b.condSQL(); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}

	return bind(sb.String()), args
}

// SubquerySQL renders "SELECT <projection> FROM table [joins] [WHERE …]" with
// ? placeholders preserved, for embedding as a correlated subquery fragment
// in a parent builder's raw condition or projection.
func (b *Builder) SubquerySQL(projection string) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(projection)
	sb.WriteString(" FROM ")
	sb.WriteString(Quote(b.table))
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where, whereArgs := b.condSQL(); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}

	return sb.String(), args
}

// insert/update/delete rendering

// InsertSQL renders an INSERT with a deterministic column order and a
// RETURNING clause.
func InsertSQL(table string, values map[string]any, returning []string) (string, []any) {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = Quote(c)
		placeholders[i] = "?"
		args[i] = values[c]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		sql += " RETURNING " + quoteList(returning)
	}
	return bind(sql), args
}

// UpdateSQL renders an UPDATE over the builder's predicates with a
// deterministic SET order and an optional RETURNING clause.
func (b *Builder) UpdateSQL(sets map[string]any, returning []string) (string, []any) {
	columns := make([]string, 0, len(sets))
	for c := range sets {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns))
	for i, c := range columns {
		assignments[i] = Quote(c) + " = ?"
		args = append(args, sets[c])
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", Quote(b.table), strings.Join(assignments, ", "))
	if where, whereArgs := b.condSQL(); where != "" {
		sql += " WHERE " + where
		args = append(args, whereArgs...)
	}
	if len(returning) > 0 {
		sql += " RETURNING " + quoteList(returning)
	}
	return bind(sql), args
}

// DeleteSQL renders a DELETE over the builder's predicates with an optional
// RETURNING clause.
func (b *Builder) DeleteSQL(returning []string) (string, []any) {
	sql := "DELETE FROM " + Quote(b.table)
	var args []any
	if where, whereArgs := b.condSQL(); where != "" {
		sql += " WHERE " + where
		args = append(args, whereArgs...)
	}
	if len(returning) > 0 {
		sql += " RETURNING " + quoteList(returning)
	}
	return bind(sql), args
}

func quoteList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// bind rewrites ? placeholders to sequential $n bindings. The generated SQL
// never contains literal question marks outside placeholders.
func bind(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql) + 8)
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
