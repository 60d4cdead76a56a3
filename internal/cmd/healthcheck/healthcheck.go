// Package healthcheck checks a gRPC health endpoint, for container liveness checks.
package healthcheck

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/ansa-jobboard/jobboard/internal/platform/cmd"
	platformgrpc "github.com/ansa-jobboard/jobboard/internal/platform/grpc"
	"github.com/ansa-jobboard/jobboard/internal/platform/timeouts"
	notifierapp "github.com/ansa-jobboard/jobboard/internal/services/notifier/app"
)

// Config holds healthcheck command configuration.
type Config struct {
	Addr    string        `env:"HEALTHCHECK_ADDR" envDefault:"localhost:8091"`
	Service string        `env:"HEALTHCHECK_SERVICE"`
	Timeout time.Duration `env:"HEALTHCHECK_TIMEOUT"`
	Verbose bool          `env:"HEALTHCHECK_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Service == "" {
		cfg.Service = notifierapp.HealthService
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.GRPCDial
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "gRPC health endpoint address")
	fs.StringVar(&cfg.Service, "service", cfg.Service, "health service name (empty checks the whole server)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "dial and health check timeout")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "log each health check")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run dials cfg.Addr and returns nil once the service reports SERVING.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return errors.New("health address is required")
	}
	var logf func(string, ...any)
	if cfg.Verbose {
		logf = func(format string, args ...any) {
			fmt.Fprintf(out, format+"\n", args...)
		}
	}
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, cfg.Service, cfg.Timeout, logf, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(out, "%s %s: SERVING\n", addr, displayService(cfg.Service))
	return nil
}

func displayService(service string) string {
	if service == "" {
		return "(server)"
	}
	return service
}
