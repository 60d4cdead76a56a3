// Package notifier parses notifier command flags and launches the delivery runtime.
package notifier

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/ansa-jobboard/jobboard/internal/platform/cmd"
	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/backend"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/mail"
	notifierserver "github.com/ansa-jobboard/jobboard/internal/services/notifier/app"
)

// Config holds notifier command configuration.
type Config struct {
	Port          int           `env:"NOTIFIER_PORT" envDefault:"8091"`
	MetricsAddr   string        `env:"NOTIFIER_METRICS_ADDR"`
	DBPath        string        `env:"NOTIFIER_DB_PATH" envDefault:"data/notifier.db"`
	Consumer      string        `env:"NOTIFIER_CONSUMER" envDefault:"notifier-email"`
	PollInterval  time.Duration `env:"NOTIFIER_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL      time.Duration `env:"NOTIFIER_LEASE_TTL" envDefault:"30s"`
	BatchSize     int           `env:"NOTIFIER_BATCH_SIZE" envDefault:"10"`
	MaxAttempts   int           `env:"NOTIFIER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"NOTIFIER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"NOTIFIER_RETRY_MAX_DELAY" envDefault:"5m"`
	Locale        string        `env:"NOTIFIER_LOCALE" envDefault:"en"`

	Storage backend.Config
	Mail    mail.Config
	Logging logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The notifier health gRPC server port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The notifier SQLite database path")
	fs.StringVar(&cfg.Storage.Driver, "store-driver", cfg.Storage.Driver, "Applications storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.Storage.SQLitePath, "store-path", cfg.Storage.SQLitePath, "Applications SQLite database path")
	fs.StringVar(&cfg.Storage.PostgresDSN, "store-dsn", cfg.Storage.PostgresDSN, "Applications PostgreSQL connection string")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Outbox lease duration")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Outbox events leased per poll")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum delivery attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Email language")
	fs.StringVar(&cfg.Mail.Transport, "mail-transport", cfg.Mail.Transport, "Mail transport (log or smtp)")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the notifier runtime.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceNotifier, cfg.Logging)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceNotifier, func(ctx context.Context) error {
		return notifierserver.Run(ctx, notifierserver.RuntimeConfig{
			Port:           cfg.Port,
			MetricsAddr:    cfg.MetricsAddr,
			Storage:        cfg.Storage,
			AttemptsDBPath: cfg.DBPath,
			Loop: notifierserver.Config{
				Consumer:      cfg.Consumer,
				PollInterval:  cfg.PollInterval,
				LeaseTTL:      cfg.LeaseTTL,
				BatchSize:     cfg.BatchSize,
				MaxAttempts:   cfg.MaxAttempts,
				RetryBackoff:  cfg.RetryBackoff,
				RetryMaxDelay: cfg.RetryMaxDelay,
			},
			Mail:   cfg.Mail,
			Locale: cfg.Locale,
			Logger: logger,
		})
	})
}
