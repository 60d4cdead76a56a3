package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/platform/timeouts"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/observability/metrics"
	appstorage "github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/backend"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/mail"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/render"
	notifiersqlite "github.com/ansa-jobboard/jobboard/internal/services/notifier/storage/sqlite"
)

// HealthService is the gRPC health service name reported by the notifier loop.
const HealthService = "notifier.runtime"

const (
	defaultNotifierPort = 8091
	defaultAttemptsDB   = "data/notifier.db"
)

// RuntimeConfig controls notifier startup, dependencies and loop behavior.
type RuntimeConfig struct {
	Port int
	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr    string
	Storage        backend.Config
	AttemptsDBPath string
	Loop           Config
	Mail           mail.Config
	// Locale selects the email language.
	Locale string
	Logger logrus.FieldLogger
}

// Run starts the notifier health server and the delivery loop until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultNotifierPort
	}
	if strings.TrimSpace(cfg.AttemptsDBPath) == "" {
		cfg.AttemptsDBPath = defaultAttemptsDB
	}
	paths := []string{cfg.AttemptsDBPath}
	if driver := strings.TrimSpace(cfg.Storage.Driver); driver == "" || driver == backend.DriverSQLite {
		paths = append(paths, cfg.Storage.SQLitePath)
	}
	for _, path := range paths {
		if err := ensureParentDir(path); err != nil {
			return err
		}
	}

	outbox, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open applications store: %w", err)
	}
	defer func() {
		if closeErr := outbox.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("close applications store")
		}
	}()

	attempts, err := notifiersqlite.Open(cfg.AttemptsDBPath)
	if err != nil {
		return fmt.Errorf("open notifier sqlite store: %w", err)
	}
	defer func() {
		if closeErr := attempts.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("close notifier sqlite store")
		}
	}()

	mailer, err := mail.New(cfg.Mail, logger.WithField("component", "mail"))
	if err != nil {
		return fmt.Errorf("configure mail: %w", err)
	}

	m := metrics.New()
	loopConfig := cfg.Loop.normalized()
	loop := New(
		outbox,
		newAttemptStoreRecorder(attempts, loopConfig.Consumer),
		map[string]EventHandler{
			appstorage.EventTypeStatusChanged: domain.NewStatusChangedHandler(mailer, render.NewLocalizer(cfg.Locale)),
		},
		loopConfig,
		logger.WithField("component", "loop"),
		m,
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on notifier port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		stop := serveMetrics(addr, m.Handler(), logger)
		defer stop()
	}

	logger.WithField("addr", listener.Addr().String()).Info("notifier health server listening")
	return loop.Run(ctx)
}

func serveMetrics(addr string, handler http.Handler, logger logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return nil
}

