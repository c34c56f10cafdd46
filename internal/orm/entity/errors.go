package entity

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the targeted row does not exist (or is outside
	// the active soft-delete scope).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate value violates unique constraint")

	// ErrForeignKey indicates a foreign key constraint violation.
	ErrForeignKey = errors.New("foreign key constraint violation")

	// ErrCheckViolation indicates a check constraint violation.
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotSoftDeletable indicates a soft-delete operation on a type that
	// has no soft-delete column.
	ErrNotSoftDeletable = errors.New("entity type does not soft-delete")
)

// ConvertDBError maps low-level database errors onto the package's sentinel
// errors so callers can match with errors.Is. Unrecognized errors pass
// through unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.ConstraintName)
		}
	}
	return err
}
