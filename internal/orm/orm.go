// Package orm is the facade tying the metadata registry, query builder,
// persistence engine, and transaction manager to one connection pool.
package orm

import (
	"database/sql"

	"github.com/fennec-api/fennec/internal/orm/entity"
	"github.com/fennec-api/fennec/internal/orm/query"
	"github.com/fennec-api/fennec/internal/orm/schema"
	"github.com/fennec-api/fennec/internal/orm/transaction"
)

// ORM binds a schema registry to a connection pool.
type ORM struct {
	db       *sql.DB
	registry *schema.Registry
	tx       *transaction.Manager
}

// New creates an ORM over the pool. A nil registry falls back to the default
// registry application model files define into.
func New(db *sql.DB, registry *schema.Registry) *ORM {
	if registry == nil {
		registry = schema.Default()
	}
	return &ORM{
		db:       db,
		registry: registry,
		tx:       transaction.NewManager(db),
	}
}

// DB returns the underlying pool.
func (o *ORM) DB() *sql.DB { return o.db }

// Registry returns the schema registry.
func (o *ORM) Registry() *schema.Registry { return o.registry }

// Tx returns the transaction manager.
func (o *ORM) Tx() *transaction.Manager { return o.tx }

// Model returns a fresh query builder for the named entity type.
func (o *ORM) Model(name string) (*query.Builder, error) {
	t, err := o.registry.MustLookup(name)
	if err != nil {
		return nil, err
	}
	return query.NewBuilder(t, o.db), nil
}

// MustModel is Model panicking on unknown type names, for callers wired at
// startup against registered types.
func (o *ORM) MustModel(name string) *query.Builder {
	q, err := o.Model(name)
	if err != nil {
		panic(err)
	}
	return q
}

// NewEntity constructs a not-yet-persisted instance of the named type.
func (o *ORM) NewEntity(name string) (*entity.Entity, error) {
	t, err := o.registry.MustLookup(name)
	if err != nil {
		return nil, err
	}
	return entity.New(t, o.db), nil
}
