package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/fennec-api/fennec/internal/orm/cast"
	"github.com/fennec-api/fennec/internal/orm/hooks"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// Save persists the instance: an INSERT when it does not exist yet, otherwise
// an UPDATE limited to the dirty fillable columns. A clean existing instance
// issues no SQL at all. On success the instance is rehydrated from the
// RETURNING row, refreshing the original snapshot.
func (e *Entity) Save(ctx context.Context) error {
	if !e.exists {
		return e.insert(ctx)
	}
	return e.update(ctx)
}

func (e *Entity) insert(ctx context.Context) error {
	values := make(map[string]any)
	for _, name := range e.typ.FillableFields() {
		v, ok := e.attrs[name]
		if !ok {
			continue
		}
		values[name] = cast.ToStorage(v, e.fieldCast(name))
	}
	if pk, ok := e.attrs[e.typ.PrimaryKey]; ok && pk != nil {
		values[e.typ.PrimaryKey] = cast.ToStorage(pk, e.fieldCast(e.typ.PrimaryKey))
	}
	e.stampTimestamps(values, true)

	payload := &schema.HookPayload{Entity: e, Tx: e.tx, Snapshot: copyMap(values)}
	if err := hooks.Dispatch(ctx, schema.BeforeCreate, e.typ, &e.Hooks, payload); err != nil {
		return err
	}

	row, err := sqlb.Insert(ctx, e.exec(), e.typ.Table, values, e.typ.Columns())
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.typ.Name, ConvertDBError(err))
	}
	e.hydrate(row)

	payload.Snapshot = e.Snapshot()
	return hooks.Dispatch(ctx, schema.AfterCreate, e.typ, &e.Hooks, payload)
}

func (e *Entity) update(ctx context.Context) error {
	sets := make(map[string]any)
	for name, v := range e.GetDirty() {
		if f, ok := e.typ.LookupField(name); ok && f.Fillable {
			sets[name] = cast.ToStorage(v, f.Cast)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	e.stampTimestamps(sets, false)

	payload := &schema.HookPayload{Entity: e, Tx: e.tx, Snapshot: copyMap(sets)}
	if err := hooks.Dispatch(ctx, schema.BeforeUpdate, e.typ, &e.Hooks, payload); err != nil {
		return err
	}

	key := e.original[e.typ.PrimaryKey]
	rows, err := sqlb.New(e.typ.Table).
		Where(e.typ.PrimaryKey, "=", key).
		UpdateReturning(ctx, e.exec(), sets, e.typ.Columns())
	if err != nil {
		return fmt.Errorf("update %s: %w", e.typ.Name, ConvertDBError(err))
	}
	if len(rows) == 0 {
		return fmt.Errorf("update %s %v: %w", e.typ.Name, key, ErrNotFound)
	}
	e.hydrate(rows[0])

	payload.Snapshot = e.Snapshot()
	return hooks.Dispatch(ctx, schema.AfterUpdate, e.typ, &e.Hooks, payload)
}

// stampTimestamps assigns the conventional timestamp columns when declared:
// created_at only on insert, updated_at on every write.
func (e *Entity) stampTimestamps(values map[string]any, inserting bool) {
	now := cast.ToStorage(time.Now().UTC(), schema.CastDate)
	if inserting {
		if _, ok := e.typ.LookupField("created_at"); ok {
			if v, set := values["created_at"]; !set || v == nil {
				values["created_at"] = now
			}
		}
	}
	if _, ok := e.typ.LookupField("updated_at"); ok {
		values["updated_at"] = now
	}
}

func (e *Entity) fieldCast(name string) schema.CastKind {
	if f, ok := e.typ.LookupField(name); ok {
		return f.Cast
	}
	return schema.CastNone
}
