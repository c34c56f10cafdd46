package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fennec-api/fennec/internal/orm/cast"
	"github.com/fennec-api/fennec/internal/orm/hooks"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// Delete removes the instance. Soft-deleting types get their delete column
// stamped inside a transaction; types without a soft-delete column are
// removed physically. Either way the pre-delete row snapshot is returned.
func (e *Entity) Delete(ctx context.Context) (map[string]any, error) {
	if e.typ.SoftDeleteColumn == "" {
		return e.ForceDelete(ctx)
	}

	snapshot := e.Snapshot()
	payload := &schema.HookPayload{Entity: e, Tx: e.tx, Snapshot: snapshot}
	if err := hooks.Dispatch(ctx, schema.BeforeDelete, e.typ, &e.Hooks, payload); err != nil {
		return nil, err
	}

	col := e.typ.SoftDeleteColumn
	now := time.Now().UTC()
	err := e.withWriteTx(ctx, func(tx *sql.Tx) error {
		affected, err := sqlb.New(e.typ.Table).
			Where(e.typ.PrimaryKey, "=", e.Key()).
			WhereNull(col).
			Update(ctx, tx, map[string]any{col: cast.ToStorage(now, schema.CastDate)})
		if err != nil {
			return ConvertDBError(err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", e.typ.Name, err)
	}

	e.attrs[col] = &now
	e.exists = false

	if err := hooks.Dispatch(ctx, schema.AfterDelete, e.typ, &e.Hooks, payload); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Restore clears the soft-delete column, bringing the row back into the
// default scope.
func (e *Entity) Restore(ctx context.Context) error {
	col := e.typ.SoftDeleteColumn
	if col == "" {
		return fmt.Errorf("restore %s: %w", e.typ.Name, ErrNotSoftDeletable)
	}

	err := e.withWriteTx(ctx, func(tx *sql.Tx) error {
		affected, err := sqlb.New(e.typ.Table).
			Where(e.typ.PrimaryKey, "=", e.Key()).
			Update(ctx, tx, map[string]any{col: nil})
		if err != nil {
			return ConvertDBError(err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", e.typ.Name, err)
	}

	e.attrs[col] = nil
	e.original[col] = nil
	e.exists = true
	return nil
}

// ForceDelete removes the row physically regardless of soft-delete support
// and returns the deleted row, or nil when it was already gone.
func (e *Entity) ForceDelete(ctx context.Context) (map[string]any, error) {
	payload := &schema.HookPayload{Entity: e, Tx: e.tx, Snapshot: e.Snapshot()}
	if err := hooks.Dispatch(ctx, schema.BeforeDelete, e.typ, &e.Hooks, payload); err != nil {
		return nil, err
	}

	var snapshot map[string]any
	err := e.withWriteTx(ctx, func(tx *sql.Tx) error {
		rows, err := sqlb.New(e.typ.Table).
			Where(e.typ.PrimaryKey, "=", e.Key()).
			DeleteReturning(ctx, tx, e.typ.Columns())
		if err != nil {
			return ConvertDBError(err)
		}
		if len(rows) > 0 {
			snapshot = rows[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", e.typ.Name, err)
	}

	e.exists = false
	payload.Snapshot = snapshot
	if err := hooks.Dispatch(ctx, schema.AfterDelete, e.typ, &e.Hooks, payload); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// withWriteTx runs fn inside the bound transaction when one is present,
// otherwise inside a transaction of its own that commits on success and rolls
// back on error or panic.
func (e *Entity) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if e.tx != nil {
		return fn(e.tx)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
