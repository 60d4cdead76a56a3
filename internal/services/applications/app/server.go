// Package app assembles and runs the applications HTTP service.
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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ansa-jobboard/jobboard/internal/platform/id"
	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/platform/timeouts"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/api/httpapi"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/auth"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/notify"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/observability/metrics"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage/backend"
)

// Config defines the inputs for the applications service.
type Config struct {
	HTTPAddr string
	Storage  backend.Config
	Auth     auth.Config
	// TerminalStatuses, when set, forbids leaving those statuses.
	TerminalStatuses []string
	// TransitionRate is the per-user status change rate per second; zero disables limiting.
	TransitionRate    float64
	TransitionBurst   int
	RequestTimeout    time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            logrus.FieldLogger
}

// Server hosts the applications HTTP API.
type Server struct {
	listener        net.Listener
	httpServer      *http.Server
	store           storage.Store
	transitions     *domain.Transitioner
	shutdownTimeout time.Duration
	logger          logrus.FieldLogger
}

// NewServer opens storage, seeds the status catalog and binds the listener.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeouts.Request
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if driver := strings.TrimSpace(cfg.Storage.Driver); driver == "" || driver == backend.DriverSQLite {
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}
	store, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open applications store: %w", err)
	}

	handler, transitions, err := newHandler(ctx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		store:           store,
		transitions:     transitions,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}, nil
}

func newHandler(ctx context.Context, cfg Config, store storage.Store, logger logrus.FieldLogger) (http.Handler, *domain.Transitioner, error) {
	catalog := domain.NewCatalog(store, id.NewID)
	inserted, err := catalog.EnsureDefaults(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("seed status catalog: %w", err)
	}
	if inserted > 0 {
		logger.WithField("inserted", inserted).Info("seeded default statuses")
	}

	var policy domain.TransitionPolicy
	if len(cfg.TerminalStatuses) > 0 {
		policy = domain.NewTerminalStatusPolicy(cfg.TerminalStatuses...)
	}

	verifier, err := auth.NewVerifier(cfg.Auth, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("token verifier: %w", err)
	}

	m := metrics.New()
	apiLogger := logger.WithField("component", "httpapi")
	var limiter *httpapi.UserRateLimiter
	if cfg.TransitionRate > 0 {
		limiter = httpapi.NewUserRateLimiter(cfg.TransitionRate, cfg.TransitionBurst)
	}
	transitions := domain.NewTransitioner(domain.TransitionerConfig{
		Applications: store,
		Transitions:  store,
		Catalog:      catalog,
		Directory:    store,
		Policy:       policy,
		Emitter:      notify.NewOutboxEmitter(store, store, id.NewID, time.Now),
		Observer:     m,
		Logger:       logger.WithField("component", "transitions"),
		NewID:        id.NewID,
	})
	handler, err := httpapi.NewHandler(httpapi.Config{
		Catalog:           catalog,
		Applications:      domain.NewApplicationService(store, catalog, store, time.Now, id.NewID),
		Transitions:       transitions,
		History:           domain.NewLedger(store, store, store),
		Verifier:          verifier,
		Metrics:           m,
		Logger:            apiLogger,
		TransitionLimiter: limiter,
	})
	if err != nil {
		return nil, nil, err
	}
	return http.TimeoutHandler(handler, cfg.RequestTimeout, `{"error":{"code":"UNKNOWN","message":"request timed out"}}`), transitions, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("applications server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.WithField("addr", s.Addr()).Info("applications server listening")
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close drains pending status change notifications and releases the store.
// Call it after ListenAndServe returns.
func (s *Server) Close() {
	if s == nil || s.store == nil {
		return
	}
	if s.transitions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		if err := s.transitions.Wait(ctx); err != nil {
			s.logger.WithError(err).Warn("drain status change notifications")
		}
		cancel()
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Warn("close applications store")
	}
}

// Run builds the server and serves until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	server, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer server.Close()
	return server.ListenAndServe(ctx)
}
