package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fennec-api/fennec/internal/config"
	"github.com/fennec-api/fennec/internal/orm"
	"github.com/fennec-api/fennec/internal/orm/schema"
)

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.Define("Order", func(t *schema.EntityType) {
		t.Field("number", schema.Fillable(), schema.Selectable(), schema.Searchable())
		t.Field("total", schema.Fillable(), schema.Selectable(), schema.Cast(schema.CastNumber))
		t.SoftDeletes()
		t.HasMany("items", "OrderItem")
	})
	reg.Define("OrderItem", func(t *schema.EntityType) {
		t.Field("order_id", schema.Fillable(), schema.Cast(schema.CastNumber))
		t.Field("qty", schema.Fillable(), schema.Cast(schema.CastNumber))
		t.BelongsTo("order", "Order")
	})
	return reg
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	o := orm.New(db, testRegistry())
	s := New(o, zap.NewNop(), config.ServerConfig{
		Host:      "localhost",
		Port:      3000,
		APIPrefix: "/api",
	})
	s.Resource("Order")
	return s, mock
}

func decodeEnvelope(t *testing.T, body *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(body.Body).Decode(&env))
	return env
}

func TestListPaginatedEnvelope(t *testing.T) {
	s, mock := newTestServer(t)

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "orders" WHERE "deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT "id", "created_at", "updated_at", "number", "total" FROM "orders" WHERE "deleted_at" IS NULL LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "total", "created_at", "updated_at"}).
			AddRow(int64(1), "A-1", float64(100), now, now))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?paginate=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "success", env.Message)
	require.NotNil(t, env.TotalRow)
	assert.Equal(t, int64(1), *env.TotalRow)

	items, ok := env.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "A-1", items[0].(map[string]any)["number"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListParsesBracketFilters(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT "id", "created_at", "updated_at", "number", "total" FROM "orders" WHERE "total" BETWEEN \$1 AND \$2 AND "deleted_at" IS NULL`).
		WithArgs("100", "200").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "total"}))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?filter%5Btotal%5D=bw:100,200", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowMissingRowReturns404Envelope(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE "deleted_at" IS NULL AND "id" = \$1 LIMIT \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/99", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "data not found", env.Message)
	assert.Empty(t, env.Data)
}

func TestCreateWritesNestedPayload(t *testing.T) {
	s, mock := newTestServer(t)

	now := time.Now().UTC().Format(time.RFC3339)
	orderCols := []string{"created_at", "deleted_at", "id", "number", "total", "updated_at"}
	itemCols := []string{"created_at", "id", "order_id", "qty", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(now, nil, int64(1), "A-1", float64(100), now))
	mock.ExpectQuery(`SELECT "id" FROM "order_items" WHERE "order_id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "order_items"`).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(now, int64(10), int64(1), int64(2), now))
	mock.ExpectCommit()

	body := strings.NewReader(`{"number":"A-1","total":100,"items":[{"qty":2}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "created", env.Message)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A-1", data["number"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "invalid request body", env.Message)
}

func TestDeleteSoftDeletesAndReturnsSnapshot(t *testing.T) {
	s, mock := newTestServer(t)

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE "deleted_at" IS NULL AND "id" = \$1 LIMIT \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "created_at", "updated_at"}).
			AddRow(int64(1), "A-1", now, now))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "deleted_at" = \$1 WHERE "id" = \$2 AND "deleted_at" IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "deleted", env.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreRoute(t *testing.T) {
	s, mock := newTestServer(t)

	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE "deleted_at" IS NOT NULL AND "id" = \$1 LIMIT \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "deleted_at"}).
			AddRow(int64(1), "A-1", now))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "deleted_at" = \$1 WHERE "id" = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/1/restore", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "restored", env.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecovererConvertsPanics(t *testing.T) {
	s, _ := newTestServer(t)
	s.router.Get("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "internal server error", env.Message)
}
