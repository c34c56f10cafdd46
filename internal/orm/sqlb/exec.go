package sqlb

import (
	"context"
	"database/sql"
)

// Executor is satisfied by *sql.DB and *sql.Tx, so every statement can run
// against either the pool or a bound transaction.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get executes the built SELECT and returns all rows as column maps. The
// result is never nil.
func (b *Builder) Get(ctx context.Context, exec Executor) ([]map[string]any, error) {
	query, args := b.ToSQL()
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// Count executes a COUNT(*) over the builder's predicates.
func (b *Builder) Count(ctx context.Context, exec Executor) (int64, error) {
	query, args := b.CountSQL()
	var count int64
	if err := exec.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Insert executes an INSERT…RETURNING and returns the stored row.
func Insert(ctx context.Context, exec Executor, table string, values map[string]any, returning []string) (map[string]any, error) {
	query, args := InsertSQL(table, values, returning)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// Update executes an UPDATE over the builder's predicates and returns the
// affected row count.
func (b *Builder) Update(ctx context.Context, exec Executor, sets map[string]any) (int64, error) {
	query, args := b.UpdateSQL(sets, nil)
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateReturning executes an UPDATE…RETURNING and returns the stored rows.
func (b *Builder) UpdateReturning(ctx context.Context, exec Executor, sets map[string]any, returning []string) ([]map[string]any, error) {
	query, args := b.UpdateSQL(sets, returning)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// Delete executes a DELETE over the builder's predicates and returns the
// affected row count.
func (b *Builder) Delete(ctx context.Context, exec Executor) (int64, error) {
	query, args := b.DeleteSQL(nil)
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteReturning executes a DELETE…RETURNING and returns the removed rows.
func (b *Builder) DeleteReturning(ctx context.Context, exec Executor, returning []string) ([]map[string]any, error) {
	query, args := b.DeleteSQL(returning)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// ScanRows scans SQL rows into a slice of column maps.
func ScanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
