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

// testRegistry builds the Order / OrderItem fixture used across the
// persistence tests. Foreign key columns are declared fillable so nested
// writes can persist them.
func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.Define("Order", func(t *schema.EntityType) {
		t.Field("number", schema.Fillable(), schema.Selectable(), schema.Searchable())
		t.Field("total", schema.Fillable(), schema.Selectable(), schema.Cast(schema.CastNumber))
		t.Field("secret_note", schema.Fillable(), schema.Hidden())
		t.SoftDeletes()
		t.HasMany("items", "OrderItem")
	})
	reg.Define("OrderItem", func(t *schema.EntityType) {
		t.Field("order_id", schema.Fillable(), schema.Selectable(), schema.Cast(schema.CastNumber))
		t.Field("qty", schema.Fillable(), schema.Selectable(), schema.Cast(schema.CastNumber))
		t.BelongsTo("order", "Order")
	})
	return reg
}

func orderType(t *testing.T, reg *schema.Registry) *schema.EntityType {
	t.Helper()
	typ, err := reg.MustLookup("Order")
	require.NoError(t, err)
	return typ
}

func orderRow(id float64) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"id":         id,
		"number":     "A-1",
		"total":      float64(100),
		"created_at": now,
		"updated_at": now,
		"deleted_at": nil,
	}
}

func TestHydrateAppliesCastsAndSnapshots(t *testing.T) {
	reg := testRegistry()
	e := Hydrate(orderType(t, reg), nil, map[string]any{
		"id":     int64(1),
		"number": []byte("A-1"),
		"total":  "19.99",
	})

	assert.True(t, e.Exists())
	assert.Equal(t, float64(1), e.Get("id"))
	assert.Equal(t, "A-1", e.Get("number"))
	assert.Equal(t, 19.99, e.Get("total"))
	assert.Empty(t, e.GetDirty())
}

func TestHydratePartialRowAssignsAllFields(t *testing.T) {
	reg := testRegistry()
	e := Hydrate(orderType(t, reg), nil, map[string]any{"id": int64(1)})

	for _, name := range e.Type().FieldNames() {
		assert.Contains(t, e.Snapshot(), name)
	}
	assert.Nil(t, e.Get("number"))
	assert.Empty(t, e.GetDirty())

	// A field missing from the projection still registers as dirty once set.
	e.Set("number", "A-1")
	dirty := e.GetDirty()
	require.Len(t, dirty, 1)
	assert.Equal(t, "A-1", dirty["number"])
}

func TestFillHonorsFillableOnly(t *testing.T) {
	reg := testRegistry()
	e := New(orderType(t, reg), nil)
	e.Fill(map[string]any{
		"number": "B-2",
		"id":     999, // not fillable
		"bogus":  "x",
	})

	assert.Equal(t, "B-2", e.Get("number"))
	assert.Nil(t, e.Get("id"))
	assert.Nil(t, e.Get("bogus"))
}

func TestGetDirtyIgnoresRepresentation(t *testing.T) {
	reg := testRegistry()
	e := Hydrate(orderType(t, reg), nil, orderRow(1))

	// Same numeric value in a different representation is not dirty.
	e.Set("total", int64(100))
	assert.Empty(t, e.GetDirty())

	e.Set("total", 150)
	dirty := e.GetDirty()
	require.Len(t, dirty, 1)
	assert.Equal(t, 150, dirty["total"])
}

func TestToExternalHidesHiddenFields(t *testing.T) {
	reg := testRegistry()
	typ := orderType(t, reg)
	typ.Attribute("display_number", func(get func(string) any) any {
		return "#" + get("number").(string)
	})

	row := orderRow(1)
	row["secret_note"] = "internal"
	e := Hydrate(typ, nil, row)

	itemType, err := reg.MustLookup("OrderItem")
	require.NoError(t, err)
	child := Hydrate(itemType, nil, map[string]any{"id": int64(10), "order_id": int64(1), "qty": int64(2)})
	e.SetRelation("items", []*Entity{child})

	out := e.ToExternal()
	assert.NotContains(t, out, "secret_note")
	assert.Equal(t, "#A-1", out["display_number"])

	items, ok := out["items"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, float64(2), items[0]["qty"])
}

func TestSaveInsertsAndRehydrates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := New(orderType(t, reg), db)
	e.Fill(map[string]any{"number": "A-1", "total": 100})

	now := time.Now().UTC().Format(time.RFC3339)
	// Sorted value columns: created_at, number, total, updated_at.
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WithArgs(sqlmock.AnyArg(), "A-1", float64(100), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "deleted_at", "id", "number", "secret_note", "total", "updated_at"}).
			AddRow(now, nil, int64(7), "A-1", nil, float64(100), now))

	require.NoError(t, e.Save(context.Background()))
	assert.True(t, e.Exists())
	assert.Equal(t, float64(7), e.Get("id"))
	assert.Empty(t, e.GetDirty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIsNoOpWhenClean(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))

	// No expectations registered: any statement would fail the test.
	require.NoError(t, e.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdatesOnlyDirtyColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))
	e.Set("total", 150)

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery(`UPDATE "orders" SET "total" = \$1, "updated_at" = \$2 WHERE "id" = \$3`).
		WithArgs(float64(150), sqlmock.AnyArg(), float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "deleted_at", "id", "number", "secret_note", "total", "updated_at"}).
			AddRow(now, nil, int64(1), "A-1", nil, float64(150), now))

	require.NoError(t, e.Save(context.Background()))
	assert.Equal(t, float64(150), e.Get("total"))

	// The snapshot was refreshed: saving again issues no SQL.
	require.NoError(t, e.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdateMissingRowReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	e := Hydrate(orderType(t, reg), db, orderRow(1))
	e.Set("total", 150)

	mock.ExpectQuery(`UPDATE "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err = e.Save(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDispatchesHooks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg := testRegistry()
	typ := orderType(t, reg)

	var events []string
	typ.Hook(schema.BeforeCreate, func(ctx context.Context, p *schema.HookPayload) error {
		events = append(events, "before")
		assert.NotEmpty(t, p.Snapshot)
		return nil
	})
	typ.Hook(schema.AfterCreate, func(ctx context.Context, p *schema.HookPayload) error {
		events = append(events, "after")
		return nil
	})

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "deleted_at", "id", "number", "secret_note", "total", "updated_at"}).
			AddRow(now, nil, int64(1), "A-1", nil, float64(0), now))

	e := New(typ, db)
	e.Fill(map[string]any{"number": "A-1"})
	require.NoError(t, e.Save(context.Background()))
	assert.Equal(t, []string{"before", "after"}, events)
}
