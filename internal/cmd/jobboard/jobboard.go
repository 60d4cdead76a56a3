// Package jobboard parses jobboard command flags and launches the applications API.
package jobboard

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync"
	"time"

	entrypoint "github.com/ansa-jobboard/jobboard/internal/platform/cmd"
	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	applicationsapp "github.com/ansa-jobboard/jobboard/internal/services/applications/app"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/auth"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/backend"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/mail"
	notifierapp "github.com/ansa-jobboard/jobboard/internal/services/notifier/app"
)

// Config holds jobboard command configuration.
type Config struct {
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	TerminalStatuses []string      `env:"TERMINAL_STATUSES" envSeparator:","`
	TransitionRate   float64       `env:"TRANSITION_RATE" envDefault:"1"`
	TransitionBurst  int           `env:"TRANSITION_BURST" envDefault:"5"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	// EmbeddedNotifier runs the notification loop inside the API process.
	EmbeddedNotifier     bool   `env:"EMBEDDED_NOTIFIER"`
	EmbeddedNotifierPort int    `env:"NOTIFIER_PORT" envDefault:"8091"`
	NotifierDBPath       string `env:"NOTIFIER_DB_PATH" envDefault:"data/notifier.db"`
	NotifierLocale       string `env:"NOTIFIER_LOCALE" envDefault:"en"`

	Storage backend.Config
	Auth    auth.Config
	Logging logging.Config
	Mail    mail.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.StringVar(&cfg.Storage.Driver, "db-driver", cfg.Storage.Driver, "Storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.Storage.SQLitePath, "db-path", cfg.Storage.SQLitePath, "The SQLite database path")
	fs.StringVar(&cfg.Storage.PostgresDSN, "db-dsn", cfg.Storage.PostgresDSN, "The PostgreSQL connection string")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (json or text)")
	fs.Float64Var(&cfg.TransitionRate, "transition-rate", cfg.TransitionRate, "Per-user status changes per second (0 disables)")
	fs.IntVar(&cfg.TransitionBurst, "transition-burst", cfg.TransitionBurst, "Per-user status change burst")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Maximum handling time of one request")
	fs.BoolVar(&cfg.EmbeddedNotifier, "embedded-notifier", cfg.EmbeddedNotifier, "Run the notification loop in this process")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the applications API and, when enabled, the embedded notifier.
// The API server opens and migrates storage before the notifier starts.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceJobboard, cfg.Logging)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceJobboard, func(ctx context.Context) error {
		server, err := applicationsapp.NewServer(ctx, applicationsapp.Config{
			HTTPAddr:         cfg.HTTPAddr,
			Storage:          cfg.Storage,
			Auth:             cfg.Auth,
			TerminalStatuses: cfg.TerminalStatuses,
			TransitionRate:   cfg.TransitionRate,
			TransitionBurst:  cfg.TransitionBurst,
			RequestTimeout:   cfg.RequestTimeout,
			Logger:           logger,
		})
		if err != nil {
			return err
		}
		defer server.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var wg sync.WaitGroup
		notifierErr := make(chan error, 1)
		if cfg.EmbeddedNotifier {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := notifierapp.Run(ctx, notifierapp.RuntimeConfig{
					Port:           cfg.EmbeddedNotifierPort,
					Storage:        cfg.Storage,
					AttemptsDBPath: cfg.NotifierDBPath,
					Mail:           cfg.Mail,
					Locale:         cfg.NotifierLocale,
					Logger:         logger.WithField("component", entrypoint.ServiceNotifier),
				})
				if err != nil {
					notifierErr <- fmt.Errorf("embedded notifier: %w", err)
					cancel()
				}
			}()
		}

		serveErr := server.ListenAndServe(ctx)
		cancel()
		wg.Wait()

		select {
		case err := <-notifierErr:
			return errors.Join(serveErr, err)
		default:
			return serveErr
		}
	})
}
