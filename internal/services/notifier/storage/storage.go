// Package storage defines the notifier's delivery attempt log.
package storage

import (
	"context"
	"time"
)

// Attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

// AttemptRecord is one delivery attempt for an outbox event.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists delivery attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	ListAttemptsForEvent(ctx context.Context, eventID string) ([]AttemptRecord, error)
}
