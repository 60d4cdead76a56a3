package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/platform/requestctx"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

const requestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

var requestIDCounter atomic.Uint64

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// RequestID injects and echoes a request id for correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = fmt.Sprintf("jb-%d-%d", time.Now().UnixNano(), requestIDCounter.Add(1))
				r.Header.Set(requestIDHeader, requestID)
			}
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverPanic converts panics into 500 responses.
func RecoverPanic(logger logrus.FieldLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.WithFields(logrus.Fields{
						"method":     r.Method,
						"path":       r.URL.Path,
						"request_id": r.Header.Get(requestIDHeader),
						"panic":      recovered,
						"stack":      strings.TrimSpace(string(debug.Stack())),
					}).Error("panic recovered")
					writeError(w, r, logger, apperrors.New(apperrors.CodeUnknown, fmt.Sprint(recovered)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// AccessLog logs and measures each request by its matched route pattern.
func AccessLog(logger logrus.FieldLogger, observer RequestObserver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			if observer != nil {
				observer.ObserveRequest(r.Method, route, rec.status, elapsed)
			}
			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"route":       route,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  r.Header.Get(requestIDHeader),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request handled")
		})
	}
}

// TokenVerifier resolves a bearer token to the calling actor.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// Authenticate requires a valid bearer token and stores the caller in the context.
func Authenticate(verifier TokenVerifier, logger logrus.FieldLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, r, logger, apperrors.New(apperrors.CodeUnauthenticated, "missing bearer token"))
				return
			}
			actor, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			ctx := requestctx.WithPrincipal(r.Context(), requestctx.Principal{UserID: actor.UserID, Role: string(actor.Role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserRateLimiter hands out one token bucket per authenticated user.
type UserRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewUserRateLimiter allows perSecond events per user with the given burst.
func NewUserRateLimiter(perSecond float64, burst int) *UserRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{limit: rate.Limit(perSecond), burst: burst, limiters: map[string]*rate.Limiter{}}
}

// Allow reports whether userID may proceed now.
func (l *UserRateLimiter) Allow(userID string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimit rejects callers that exceed their per-user budget.
func RateLimit(limiter *UserRateLimiter, logger logrus.FieldLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(requestctx.UserIDFromContext(r.Context())) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, logger, apperrors.New(apperrors.CodeRateLimited, "transition rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
