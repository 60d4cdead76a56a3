// Package metrics exposes Prometheus collectors for the applications service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobboard"

// Metrics holds the service collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var _ domain.TransitionObserver = (*Metrics)(nil)

// New creates collectors on a fresh registry, including Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "applications",
				Name:      "status_transitions_total",
				Help:      "Status transition attempts by target status and outcome.",
			},
			[]string{"status", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "applications",
				Name:      "status_notifications_total",
				Help:      "Status change hand-offs to the notification outbox by outcome.",
			},
			[]string{"outcome"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "deliveries_total",
				Help:      "Outbox events processed by the notifier by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests handled by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
	}
	m.registry.MustRegister(
		m.transitions,
		m.notifications,
		m.deliveries,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransition counts one transition attempt.
func (m *Metrics) ObserveTransition(statusCode, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(labelOrUnknown(statusCode), labelOrUnknown(outcome)).Inc()
}

// ObserveNotification counts one notification hand-off.
func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// ObserveDelivery counts one notifier outcome.
func (m *Metrics) ObserveDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(labelOrUnknown(eventType), labelOrUnknown(outcome)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = labelOrUnknown(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func labelOrUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
