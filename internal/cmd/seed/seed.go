// Package seed parses seed command flags and loads fixtures into the store.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/ansa-jobboard/jobboard/internal/platform/cmd"
	"github.com/ansa-jobboard/jobboard/internal/platform/id"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/backend"
	"github.com/ansa-jobboard/jobboard/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	File    string `env:"SEED_FILE"`
	Storage backend.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.File, "file", cfg.File, "YAML fixture of users, job postings and statuses")
	fs.StringVar(&cfg.Storage.Driver, "db-driver", cfg.Storage.Driver, "Storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.Storage.SQLitePath, "db-path", cfg.Storage.SQLitePath, "The SQLite database path")
	fs.StringVar(&cfg.Storage.PostgresDSN, "db-dsn", cfg.Storage.PostgresDSN, "The PostgreSQL connection string")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.File) == "" {
		return Config{}, errors.New("fixture file is required (-file)")
	}
	return cfg, nil
}

// Run loads the fixture file and applies it to the configured store.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	fixture, err := seed.LoadFile(cfg.File)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		if driver := strings.TrimSpace(cfg.Storage.Driver); driver == "" || driver == backend.DriverSQLite {
			if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create storage dir: %w", err)
				}
			}
		}
		store, err := backend.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open applications store: %w", err)
		}
		defer store.Close()

		result, err := seed.Apply(ctx, store, fixture, id.NewID, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Seeded %d users, %d job postings (statuses: %d inserted, %d updated)\n",
			result.Users, result.JobPostings, result.StatusesInserted, result.StatusesUpdated)
		return nil
	})
}
