package domain

import (
	"context"
	"time"
)

// StatusChange describes a committed transition for downstream notification.
type StatusChange struct {
	HistoryID      string
	ApplicationID  string
	JobPostingID   string
	JobTitle       string
	ApplicantID    string
	PreviousStatus Status
	Status         Status
	ChangedBy      string
	ChangedAt      time.Time
}

// Emitter hands a committed status change to the notification collaborator.
// It runs after commit; its failures never undo the transition.
type Emitter interface {
	Emit(ctx context.Context, change StatusChange) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, change StatusChange) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, change StatusChange) error {
	return f(ctx, change)
}

// Transition outcomes reported to a TransitionObserver.
const (
	OutcomeCommitted     = "committed"
	OutcomeNotFound      = "not_found"
	OutcomeInvalidStatus = "invalid_status"
	OutcomeForbidden     = "forbidden"
	OutcomeNotAllowed    = "not_allowed"
	OutcomeConflict      = "conflict"
	OutcomeError         = "error"
)

// TransitionObserver receives transition and notification outcomes.
type TransitionObserver interface {
	ObserveTransition(statusCode, outcome string)
	ObserveNotification(outcome string)
}
