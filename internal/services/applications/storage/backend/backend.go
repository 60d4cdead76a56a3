// Package backend opens the configured applications store.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/postgres"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates a store.
type Config struct {
	Driver       string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath   string `env:"DB_PATH" envDefault:"data/jobboard.db"`
	PostgresDSN  string `env:"DB_DSN"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres, "pgx":
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxOpenConns: cfg.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
