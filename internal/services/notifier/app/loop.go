// Package app runs the notifier: it leases status change events from the
// applications outbox and delivers them as email.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/platform/timeouts"
	appstorage "github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/storage"
)

const (
	defaultConsumer      = "notifier-email"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 30 * time.Second
	defaultBatchSize     = 10
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// OutboxClient is the outbox surface the loop drives.
type OutboxClient interface {
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]appstorage.OutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error
}

// EventHandler processes one leased event.
type EventHandler interface {
	Handle(ctx context.Context, event appstorage.OutboxEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event appstorage.OutboxEvent) error

// Handle calls f.
func (f EventHandlerFunc) Handle(ctx context.Context, event appstorage.OutboxEvent) error {
	return f(ctx, event)
}

// Attempt describes the outcome of processing one event once.
type Attempt struct {
	EventID      string
	EventType    string
	Outcome      string
	AttemptCount int
	Error        string
	CreatedAt    time.Time
}

// AttemptRecorder keeps a log of processing attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// DeliveryObserver counts processed events.
type DeliveryObserver interface {
	ObserveDelivery(eventType, outcome string)
}

// Config controls lease and retry behavior.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// HandlerTimeout bounds one Handle call.
	HandlerTimeout time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = timeouts.NotificationDelivery
	}
	return c
}

// Loop leases outbox events and dispatches them to handlers by event type.
type Loop struct {
	outbox   OutboxClient
	recorder AttemptRecorder
	handlers map[string]EventHandler
	cfg      Config
	logger   logrus.FieldLogger
	observer DeliveryObserver
	clock    func() time.Time
}

// New creates a loop. recorder, logger and observer are optional.
func New(outbox OutboxClient, recorder AttemptRecorder, handlers map[string]EventHandler, cfg Config, logger logrus.FieldLogger, observer DeliveryObserver) *Loop {
	if logger == nil {
		logger = logging.Discard()
	}
	registered := make(map[string]EventHandler, len(handlers))
	for eventType, handler := range handlers {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" || handler == nil {
			continue
		}
		registered[eventType] = handler
	}
	return &Loop{
		outbox:   outbox,
		recorder: recorder,
		handlers: registered,
		cfg:      cfg.normalized(),
		logger:   logger,
		observer: observer,
		clock:    time.Now,
	}
}

// Run polls until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.outbox == nil {
		return errors.New("notifier loop is not configured")
	}
	l.logger.WithFields(logrus.Fields{
		"consumer":      l.cfg.Consumer,
		"poll_interval": l.cfg.PollInterval.String(),
		"max_attempts":  l.cfg.MaxAttempts,
	}).Info("notifier loop started")

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for {
			processed, err := l.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				l.logger.WithError(err).Warn("notifier poll failed")
			}
			// Drain full batches without waiting for the next tick.
			if err != nil || processed < l.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			l.logger.Info("notifier loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases one batch and processes it, returning how many events it leased.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	if l == nil || l.outbox == nil {
		return 0, errors.New("notifier loop is not configured")
	}
	events, err := l.outbox.LeaseOutboxEvents(ctx, l.cfg.Consumer, l.cfg.BatchSize, l.clock().UTC(), l.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		l.process(ctx, event)
	}
	return len(events), nil
}

func (l *Loop) process(ctx context.Context, event appstorage.OutboxEvent) {
	attemptCount := event.AttemptCount + 1
	fields := logrus.Fields{
		"event_id":      event.ID,
		"event_type":    event.EventType,
		"attempt_count": attemptCount,
	}

	handleErr := l.handle(ctx, event)
	now := l.clock().UTC()
	outcome := storage.OutcomeSucceeded
	var markErr error
	switch {
	case handleErr == nil:
		markErr = l.outbox.MarkOutboxSucceeded(ctx, event.ID, l.cfg.Consumer, now)
	case domain.IsPermanent(handleErr) || attemptCount >= l.cfg.MaxAttempts:
		outcome = storage.OutcomeDead
		markErr = l.outbox.MarkOutboxDead(ctx, event.ID, l.cfg.Consumer, handleErr.Error(), now)
	default:
		outcome = storage.OutcomeRetry
		markErr = l.outbox.MarkOutboxRetry(ctx, event.ID, l.cfg.Consumer, now.Add(l.retryDelay(attemptCount)), handleErr.Error())
	}

	entry := l.logger.WithFields(fields).WithField("outcome", outcome)
	if markErr != nil {
		// The lease will expire and the event will be delivered again.
		entry.WithError(markErr).Warn("settle outbox event failed")
		return
	}
	switch outcome {
	case storage.OutcomeSucceeded:
		entry.Info("outbox event delivered")
	case storage.OutcomeDead:
		entry.WithError(handleErr).Error("outbox event dead-lettered")
	default:
		entry.WithError(handleErr).Warn("outbox event will be retried")
	}

	if l.observer != nil {
		l.observer.ObserveDelivery(event.EventType, outcome)
	}
	if l.recorder == nil {
		return
	}
	attempt := Attempt{
		EventID:      event.ID,
		EventType:    event.EventType,
		Outcome:      outcome,
		AttemptCount: attemptCount,
		CreatedAt:    now,
	}
	if handleErr != nil {
		attempt.Error = handleErr.Error()
	}
	if err := l.recorder.RecordAttempt(ctx, attempt); err != nil {
		entry.WithError(err).Warn("record delivery attempt failed")
	}
}

func (l *Loop) handle(ctx context.Context, event appstorage.OutboxEvent) (err error) {
	handler, ok := l.handlers[strings.TrimSpace(event.EventType)]
	if !ok {
		return domain.Permanent(fmt.Errorf("no handler for event type %q", event.EventType))
	}
	handleCtx, cancel := context.WithTimeout(ctx, l.cfg.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(handleCtx, event)
}

// retryDelay is the exponential delay before attempt+1, capped at RetryMaxDelay.
func (l *Loop) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.RetryBackoff
	b.MaxInterval = l.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	delay := b.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

type attemptStoreRecorder struct {
	store    storage.AttemptStore
	consumer string
}

func newAttemptStoreRecorder(store storage.AttemptStore, consumer string) *attemptStoreRecorder {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return &attemptStoreRecorder{store: store, consumer: consumer}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.RecordAttempt(ctx, storage.AttemptRecord{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		Consumer:     r.consumer,
		Outcome:      attempt.Outcome,
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.Error,
		CreatedAt:    attempt.CreatedAt,
	})
}
