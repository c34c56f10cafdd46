// Package transaction owns transaction lifecycle around the pool: explicit
// begin for callers that manage commit themselves, and a function-scoped
// wrapper that commits on success and rolls back on error or panic.
package transaction

import (
	"context"
	"database/sql"
	"fmt"
)

// Manager opens transactions against one pool.
type Manager struct {
	db *sql.DB
}

// NewManager creates a transaction manager.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction with default options. The caller owns commit and
// rollback.
func (m *Manager) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
