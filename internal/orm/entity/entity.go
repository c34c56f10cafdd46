// Package entity implements the in-memory entity instance and the
// persistence engine: hydration with casts, dirty tracking against the
// as-loaded snapshot, single-entity save, transactional nested writes (pump),
// and soft/physical deletion.
package entity

import (
	"database/sql"
	"reflect"

	"github.com/fennec-api/fennec/internal/orm/cast"
	"github.com/fennec-api/fennec/internal/orm/hooks"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// Entity holds the in-memory values for one row: current attributes, the
// snapshot of values as loaded (original), an existence flag, an optional
// bound transaction, loaded relations, and per-instance hook overrides.
type Entity struct {
	typ *schema.EntityType
	db  *sql.DB
	tx  *sql.Tx

	attrs     map[string]any
	original  map[string]any
	relations map[string]any
	exists    bool

	// Hooks carries instance-level hook registrations and suppressions.
	Hooks hooks.Instance
}

// New constructs a not-yet-existing entity instance of the given type.
func New(t *schema.EntityType, db *sql.DB) *Entity {
	return &Entity{
		typ:       t,
		db:        db,
		attrs:     make(map[string]any),
		original:  make(map[string]any),
		relations: make(map[string]any),
	}
}

// Hydrate constructs an existing entity instance from a storage row. Every
// registered field is assigned with its cast applied, the original snapshot
// is taken, and the instance is marked as existing.
func Hydrate(t *schema.EntityType, db *sql.DB, row map[string]any) *Entity {
	e := New(t, db)
	e.hydrate(row)
	return e
}

func (e *Entity) hydrate(row map[string]any) {
	e.attrs = make(map[string]any, len(e.typ.FieldNames()))
	for column, value := range row {
		if f, ok := e.typ.LookupField(column); ok {
			e.attrs[column] = cast.FromStorage(value, f.Cast)
		} else {
			e.attrs[column] = cast.FromStorage(value, schema.CastNone)
		}
	}
	// Registered fields absent from the row (partial projections) are still
	// assigned, so later writes to them register as dirty.
	for _, name := range e.typ.FieldNames() {
		if _, ok := e.attrs[name]; !ok {
			e.attrs[name] = nil
		}
	}
	e.original = copyMap(e.attrs)
	e.exists = true
}

// Type returns the entity type descriptor.
func (e *Entity) Type() *schema.EntityType { return e.typ }

// DB returns the connection pool the instance is bound to.
func (e *Entity) DB() *sql.DB { return e.db }

// Exists reports whether the instance is backed by a storage row.
func (e *Entity) Exists() bool { return e.exists }

// UseTransaction binds all subsequent writes to the given transaction.
func (e *Entity) UseTransaction(tx *sql.Tx) *Entity {
	e.tx = tx
	return e
}

// Tx returns the bound transaction, or nil.
func (e *Entity) Tx() *sql.Tx { return e.tx }

// exec returns the bound transaction when present, else the pool.
func (e *Entity) exec() sqlb.Executor {
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

// Get returns the in-memory value of a field.
func (e *Entity) Get(name string) any {
	return e.attrs[name]
}

// Set assigns a field value directly, bypassing the fillable check.
func (e *Entity) Set(name string, value any) *Entity {
	e.attrs[name] = value
	return e
}

// Key returns the primary key value.
func (e *Entity) Key() any {
	return e.attrs[e.typ.PrimaryKey]
}

// Fill mass-assigns payload values onto fields flagged fillable; all other
// keys are ignored.
func (e *Entity) Fill(payload map[string]any) *Entity {
	for _, name := range e.typ.FillableFields() {
		if v, ok := payload[name]; ok {
			e.attrs[name] = v
		}
	}
	return e
}

// GetDirty returns the fields whose current value differs from the original
// snapshot. Keys absent from the snapshot are never reported.
func (e *Entity) GetDirty() map[string]any {
	dirty := make(map[string]any)
	for name, orig := range e.original {
		current, ok := e.attrs[name]
		if !ok {
			continue
		}
		if !e.valuesEqual(name, current, orig) {
			dirty[name] = current
		}
	}
	return dirty
}

// valuesEqual compares two in-memory values through their storage form, so
// that representational differences (int vs float64) do not count as dirty.
func (e *Entity) valuesEqual(field string, a, b any) bool {
	kind := schema.CastNone
	if f, ok := e.typ.LookupField(field); ok {
		kind = f.Cast
	}
	return reflect.DeepEqual(cast.ToStorage(a, kind), cast.ToStorage(b, kind))
}

// Relation returns a loaded relation value and whether it was loaded.
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// SetRelation attaches a loaded relation value under the relation's name.
func (e *Entity) SetRelation(name string, value any) {
	e.relations[name] = value
}

// Attribute computes the named attribute against the current field values.
func (e *Entity) Attribute(name string) (any, bool) {
	fn, ok := e.typ.LookupAttribute(name)
	if !ok {
		return nil, false
	}
	return fn(e.Get), true
}

// ToExternal builds the external representation: every non-hidden field,
// every computed attribute, and every loaded relation (rendered externally
// in turn). Hidden fields never appear, even when selected from storage.
func (e *Entity) ToExternal() map[string]any {
	out := make(map[string]any, len(e.attrs))
	for name, value := range e.attrs {
		if f, ok := e.typ.LookupField(name); ok && f.Hidden {
			continue
		}
		out[name] = value
	}

	for _, name := range e.typ.AttributeNames() {
		if v, ok := e.Attribute(name); ok {
			out[name] = v
		}
	}

	for name, value := range e.relations {
		switch rel := value.(type) {
		case *Entity:
			out[name] = rel.ToExternal()
		case []*Entity:
			items := make([]map[string]any, 0, len(rel))
			for _, child := range rel {
				items = append(items, child.ToExternal())
			}
			out[name] = items
		default:
			out[name] = value
		}
	}

	return out
}

// Snapshot returns a copy of the current attribute map.
func (e *Entity) Snapshot() map[string]any {
	return copyMap(e.attrs)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
