package entity

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// PumpOption configures a Pump call.
type PumpOption func(*pumpOptions)

type pumpOptions struct {
	tx *sql.Tx
}

// WithTx runs the pump inside an existing transaction instead of opening one.
// Commit and rollback stay with the transaction's owner.
func WithTx(tx *sql.Tx) PumpOption {
	return func(o *pumpOptions) { o.tx = tx }
}

// Pump writes the payload and its nested relation payloads as one atomic
// graph. The root call opens a transaction (unless one is supplied or already
// bound) and alone commits or rolls it back; recursive calls reuse it.
//
// Flat fillable values are saved first so relation foreign keys referencing
// this entity resolve. Nested keys must name declared relations; singular
// relations are located or constructed then pumped recursively, plural
// relations are reconciled against the stored child set: items carrying the
// primary key update the matching child in place, items without it create a
// new child, and stored children absent from the payload are deleted in a
// single statement.
func (e *Entity) Pump(ctx context.Context, payload map[string]any, opts ...PumpOption) error {
	var o pumpOptions
	for _, opt := range opts {
		opt(&o)
	}

	tx := o.tx
	if tx == nil {
		tx = e.tx
	}
	root := tx == nil
	if root {
		var err error
		tx, err = e.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		// The transaction binding lives only as long as the pump; once the
		// root commits or rolls back the instance goes back to the pool.
		defer e.UseTransaction(nil)
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			}
		}()
	}
	e.UseTransaction(tx)

	err := e.pumpInTx(ctx, tx, payload)
	if !root {
		return err
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (e *Entity) pumpInTx(ctx context.Context, tx *sql.Tx, payload map[string]any) error {
	flat, nested, err := e.partition(payload)
	if err != nil {
		return err
	}

	e.Fill(flat)
	if err := e.Save(ctx); err != nil {
		return err
	}

	// Deterministic relation order.
	names := make([]string, 0, len(nested))
	for name := range nested {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rel, err := e.typ.LookupRelation(name)
		if err != nil {
			return err
		}
		switch rel.Kind {
		case schema.BelongsTo:
			err = e.pumpBelongsTo(ctx, tx, rel, nested[name])
		case schema.HasOne:
			err = e.pumpHasOne(ctx, tx, rel, nested[name])
		case schema.HasMany:
			err = e.pumpHasMany(ctx, tx, rel, nested[name])
		case schema.BelongsToMany:
			err = e.pumpBelongsToMany(ctx, tx, rel, nested[name])
		}
		if err != nil {
			return fmt.Errorf("pump %s.%s: %w", e.typ.Name, name, err)
		}
	}
	return nil
}

// partition splits the payload into flat fillable values and nested relation
// payloads. A structured value under a key that names no declared relation is
// a configuration error.
func (e *Entity) partition(payload map[string]any) (map[string]any, map[string]any, error) {
	fillable := make(map[string]bool)
	for _, name := range e.typ.FillableFields() {
		fillable[name] = true
	}

	flat := make(map[string]any)
	nested := make(map[string]any)
	for key, value := range payload {
		if fillable[key] {
			flat[key] = value
			continue
		}
		switch value.(type) {
		case map[string]any, []any, []map[string]any:
			if _, err := e.typ.LookupRelation(key); err != nil {
				return nil, nil, err
			}
			nested[key] = value
		}
	}
	return flat, nested, nil
}

func (e *Entity) pumpBelongsTo(ctx context.Context, tx *sql.Tx, rel *schema.Relation, value any) error {
	item, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("expected object payload for belongs-to relation %s", rel.Name)
	}
	target, err := rel.Target()
	if err != nil {
		return err
	}

	child, err := e.resolveChild(ctx, tx, target, item)
	if err != nil {
		return err
	}
	if err := child.Pump(ctx, item, WithTx(tx)); err != nil {
		return err
	}

	// The owner carries the foreign key, so link and re-save.
	e.Set(rel.ForeignKey, child.Get(rel.LocalKey))
	return e.Save(ctx)
}

func (e *Entity) pumpHasOne(ctx context.Context, tx *sql.Tx, rel *schema.Relation, value any) error {
	item, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("expected object payload for has-one relation %s", rel.Name)
	}
	target, err := rel.Target()
	if err != nil {
		return err
	}

	child, err := e.resolveChild(ctx, tx, target, item)
	if err != nil {
		return err
	}
	child.Set(rel.ForeignKey, e.Get(rel.LocalKey))
	return child.Pump(ctx, item, WithTx(tx))
}

func (e *Entity) pumpHasMany(ctx context.Context, tx *sql.Tx, rel *schema.Relation, value any) error {
	items, err := itemList(value, rel.Name)
	if err != nil {
		return err
	}
	target, err := rel.Target()
	if err != nil {
		return err
	}

	existing, err := sqlb.New(target.Table).
		Select(target.PrimaryKey).
		Where(rel.ForeignKey, "=", e.Get(rel.LocalKey)).
		Get(ctx, tx)
	if err != nil {
		return ConvertDBError(err)
	}

	kept := make(map[string]bool, len(items))
	for _, item := range items {
		child, err := e.resolveChild(ctx, tx, target, item)
		if err != nil {
			return err
		}
		child.Set(rel.ForeignKey, e.Get(rel.LocalKey))
		if err := child.Pump(ctx, item, WithTx(tx)); err != nil {
			return err
		}
		kept[keyString(child.Key())] = true
	}

	orphans := orphanKeys(existing, target.PrimaryKey, kept)
	if len(orphans) == 0 {
		return nil
	}
	_, err = sqlb.New(target.Table).
		WhereIn(target.PrimaryKey, orphans).
		Delete(ctx, tx)
	return ConvertDBError(err)
}

func (e *Entity) pumpBelongsToMany(ctx context.Context, tx *sql.Tx, rel *schema.Relation, value any) error {
	items, err := itemList(value, rel.Name)
	if err != nil {
		return err
	}
	target, err := rel.Target()
	if err != nil {
		return err
	}

	existing, err := sqlb.New(rel.PivotTable).
		Select(rel.PivotForeignKey).
		Where(rel.PivotLocalKey, "=", e.Get(rel.LocalKey)).
		Get(ctx, tx)
	if err != nil {
		return ConvertDBError(err)
	}
	attached := make(map[string]bool, len(existing))
	for _, row := range existing {
		attached[keyString(row[rel.PivotForeignKey])] = true
	}

	kept := make(map[string]bool, len(items))
	for _, item := range items {
		child, err := e.resolveChild(ctx, tx, target, item)
		if err != nil {
			return err
		}
		if err := child.Pump(ctx, item, WithTx(tx)); err != nil {
			return err
		}
		ck := keyString(child.Key())
		kept[ck] = true
		if !attached[ck] {
			_, err := sqlb.Insert(ctx, tx, rel.PivotTable, map[string]any{
				rel.PivotLocalKey:   e.Get(rel.LocalKey),
				rel.PivotForeignKey: child.Key(),
			}, []string{rel.PivotLocalKey})
			if err != nil {
				return ConvertDBError(err)
			}
		}
	}

	orphans := orphanKeys(existing, rel.PivotForeignKey, kept)
	if len(orphans) == 0 {
		return nil
	}
	_, err = sqlb.New(rel.PivotTable).
		Where(rel.PivotLocalKey, "=", e.Get(rel.LocalKey)).
		WhereIn(rel.PivotForeignKey, orphans).
		Delete(ctx, tx)
	return ConvertDBError(err)
}

// resolveChild locates the existing child addressed by the payload's primary
// key, or constructs a fresh instance when the payload carries none.
func (e *Entity) resolveChild(ctx context.Context, tx *sql.Tx, target *schema.EntityType, item map[string]any) (*Entity, error) {
	id, ok := item[target.PrimaryKey]
	if !ok || id == nil {
		return New(target, e.db).UseTransaction(tx), nil
	}

	rows, err := sqlb.New(target.Table).
		Where(target.PrimaryKey, "=", id).
		Limit(1).
		Get(ctx, tx)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %v: %w", target.Name, id, ErrNotFound)
	}
	return Hydrate(target, e.db, rows[0]).UseTransaction(tx), nil
}

func itemList(value any, relation string) ([]map[string]any, error) {
	switch list := value.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		items := make([]map[string]any, 0, len(list))
		for _, v := range list {
			item, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object items for relation %s", relation)
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected array payload for relation %s", relation)
	}
}

// orphanKeys returns the stored keys not present in the kept set.
func orphanKeys(rows []map[string]any, column string, kept map[string]bool) []any {
	var orphans []any
	for _, row := range rows {
		id := row[column]
		if !kept[keyString(id)] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// keyString normalizes primary key values for set membership, so an int64
// from storage matches a float64 from a JSON payload.
func keyString(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	case []byte:
		return string(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
