// Package storage defines the persistence contracts of the applications service.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrConflict is returned when a write loses to a concurrent writer or a constraint.
var ErrConflict = domain.ErrConflict

// Outbox event lifecycle statuses.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusLeased    = "leased"
	OutboxStatusSucceeded = "succeeded"
	OutboxStatusDead      = "dead"
)

// EventTypeStatusChanged is emitted once per committed status transition.
const EventTypeStatusChanged = "application.status_changed.v1"

// OutboxEvent is one durable hand-off to the notification collaborator.
type OutboxEvent struct {
	ID          string
	EventType   string
	PayloadJSON string
	// DedupeKey makes enqueue idempotent when non-empty.
	DedupeKey      string
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OutboxStore persists and leases outbox events.
type OutboxStore interface {
	EnqueueOutboxEvent(ctx context.Context, event OutboxEvent) error
	GetOutboxEvent(ctx context.Context, id string) (OutboxEvent, error)
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error
}

// DirectoryStore mirrors users and job postings owned by other parts of the board.
type DirectoryStore interface {
	domain.Directory
	PutUser(ctx context.Context, user domain.User) error
	PutJobPosting(ctx context.Context, posting domain.JobPosting) error
}

// Store is the full persistence surface of the applications service.
type Store interface {
	domain.StatusStore
	domain.ApplicationStore
	domain.TransitionStore
	domain.HistoryStore
	DirectoryStore
	OutboxStore
	Close() error
}

// NormalizeOutboxEvent trims an event and fills its defaults before it is enqueued.
func NormalizeOutboxEvent(event OutboxEvent, now time.Time) (OutboxEvent, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.EventType = strings.TrimSpace(event.EventType)
	event.PayloadJSON = strings.TrimSpace(event.PayloadJSON)
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	event.Status = strings.TrimSpace(event.Status)
	event.LeaseOwner = strings.TrimSpace(event.LeaseOwner)
	event.LastError = strings.TrimSpace(event.LastError)
	if event.ID == "" {
		return OutboxEvent{}, fmt.Errorf("event id is required")
	}
	if event.EventType == "" {
		return OutboxEvent{}, fmt.Errorf("event type is required")
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.AttemptCount < 0 {
		return OutboxEvent{}, fmt.Errorf("attempt count must be greater than or equal to zero")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now.UTC()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = event.CreatedAt
	}
	return event, nil
}

// LeaseRequest validates and normalizes the arguments of a lease call.
func LeaseRequest(consumer string, limit int, now time.Time, leaseTTL time.Duration) (string, time.Time, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", time.Time{}, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return "", time.Time{}, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return "", time.Time{}, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now()
	}
	return consumer, now.UTC(), nil
}
