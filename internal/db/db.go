// Package db manages named database connections: each name maps to a
// configured driver and URL, pools are opened lazily on first use and cached
// for the process lifetime.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// Registered database drivers selectable by name.
	_ "github.com/jackc/pgx/v5/stdlib" // pgx
	_ "github.com/lib/pq"              // postgres

	"github.com/fennec-api/fennec/internal/config"
)

// DefaultConnection is the connection name used when none is given.
const DefaultConnection = "default"

// ErrUnknownConnection indicates a connection name with no configuration.
var ErrUnknownConnection = errors.New("unknown database connection")

// supportedDrivers maps config driver names onto registered sql drivers.
var supportedDrivers = map[string]string{
	"pgx":      "pgx",
	"postgres": "postgres",
	"pq":       "postgres",
}

// Factory opens and caches pools for named connections.
type Factory struct {
	mu      sync.Mutex
	configs map[string]config.DatabaseConfig
	pools   map[string]*sql.DB
}

// NewFactory creates a factory over the configured connections.
func NewFactory(configs map[string]config.DatabaseConfig) *Factory {
	return &Factory{
		configs: configs,
		pools:   make(map[string]*sql.DB),
	}
}

// Connection returns the pool for a named connection, opening it on first
// use. With no argument the default connection is returned.
func (f *Factory) Connection(name ...string) (*sql.DB, error) {
	n := DefaultConnection
	if len(name) > 0 && name[0] != "" {
		n = name[0]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if pool, ok := f.pools[n]; ok {
		return pool, nil
	}

	cfg, ok := f.configs[n]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, n)
	}

	driver, ok := supportedDrivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q for connection %s", cfg.Driver, n)
	}

	pool, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", n, err)
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	f.pools[n] = pool
	return pool, nil
}

// Close closes every opened pool, returning the first error encountered.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var first error
	for name, pool := range f.pools {
		if err := pool.Close(); err != nil && first == nil {
			first = fmt.Errorf("close connection %s: %w", name, err)
		}
		delete(f.pools, name)
	}
	return first
}
