package entity

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennec-api/fennec/internal/orm/schema"
)

func TestDeleteSoftDeletes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "deleted_at" = \$1 WHERE "id" = \$2 AND "deleted_at" IS NULL`).
		WithArgs(sqlmock.AnyArg(), float64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snapshot, err := e.Delete(context.Background())
	require.NoError(t, err)
	assert.False(t, e.Exists())
	assert.NotNil(t, e.Get("deleted_at"))

	// The snapshot reflects the row before the delete.
	assert.Nil(t, snapshot["deleted_at"])
	assert.Equal(t, "A-1", snapshot["number"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlreadyTrashedReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = e.Delete(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	row := orderRow(1)
	row["deleted_at"] = time.Now().UTC().Format(time.RFC3339)
	e := Hydrate(orderType(t, reg), db, row)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "deleted_at" = \$1 WHERE "id" = \$2`).
		WithArgs(nil, float64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, e.Restore(context.Background()))
	assert.True(t, e.Exists())
	assert.Nil(t, e.Get("deleted_at"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreWithoutSoftDeleteColumn(t *testing.T) {
	reg := testRegistry()
	itemType, err := reg.MustLookup("OrderItem")
	require.NoError(t, err)

	e := Hydrate(itemType, nil, map[string]any{"id": int64(1)})
	assert.ErrorIs(t, e.Restore(context.Background()), ErrNotSoftDeletable)
}

func TestForceDeleteReturnsSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM "orders" WHERE "id" = \$1 RETURNING`).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "deleted_at", "id", "number", "secret_note", "total", "updated_at"}).
			AddRow(now, nil, int64(1), "A-1", nil, float64(100), now))
	mock.ExpectCommit()

	snapshot, err := e.ForceDelete(context.Background())
	require.NoError(t, err)
	assert.False(t, e.Exists())
	assert.Equal(t, int64(1), snapshot["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDispatchesHooks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	typ := orderType(t, reg)

	var events []string
	typ.Hook(schema.BeforeDelete, func(ctx context.Context, p *schema.HookPayload) error {
		events = append(events, "before")
		return nil
	})
	typ.Hook(schema.AfterDelete, func(ctx context.Context, p *schema.HookPayload) error {
		events = append(events, "after")
		return nil
	})

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := Hydrate(typ, db, orderRow(1))
	_, err = e.Delete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, events)
}
