// Package notify hands committed status changes to the notification outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

// StatusChangedPayload is the durable body of a status change event.
type StatusChangedPayload struct {
	RecipientEmail       string    `json:"recipient_email"`
	JobTitle             string    `json:"job_title"`
	NewStatusDescription string    `json:"new_status_description"`
	ApplicationID        string    `json:"application_id"`
	JobPostingID         string    `json:"job_posting_id"`
	ApplicantID          string    `json:"applicant_id"`
	StatusCode           string    `json:"status_code"`
	ChangedAt            time.Time `json:"changed_at"`
}

// Enqueuer is the outbox write the emitter needs.
type Enqueuer interface {
	EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error
}

// UserLookup resolves the applicant's contact address.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// OutboxEmitter implements domain.Emitter by enqueueing one outbox event per
// ledger entry.
type OutboxEmitter struct {
	outbox Enqueuer
	users  UserLookup
	newID  func() (string, error)
	clock  func() time.Time
}

var _ domain.Emitter = (*OutboxEmitter)(nil)

// NewOutboxEmitter creates an emitter.
func NewOutboxEmitter(outbox Enqueuer, users UserLookup, idGenerator func() (string, error), clock func() time.Time) *OutboxEmitter {
	if clock == nil {
		clock = time.Now
	}
	return &OutboxEmitter{outbox: outbox, users: users, newID: idGenerator, clock: clock}
}

// DedupeKey identifies the event for one ledger entry.
func DedupeKey(historyID string) string {
	return "status_changed:" + strings.TrimSpace(historyID)
}

// Emit enqueues the status change.
func (e *OutboxEmitter) Emit(ctx context.Context, change domain.StatusChange) error {
	if e == nil || e.outbox == nil || e.users == nil || e.newID == nil {
		return fmt.Errorf("outbox emitter is not configured")
	}
	if strings.TrimSpace(change.HistoryID) == "" {
		return fmt.Errorf("history id is required")
	}

	applicant, err := e.users.GetUser(ctx, change.ApplicantID)
	if err != nil {
		return fmt.Errorf("resolve applicant %s: %w", change.ApplicantID, err)
	}
	if strings.TrimSpace(applicant.Email) == "" {
		return fmt.Errorf("applicant %s has no email", change.ApplicantID)
	}

	payload, err := json.Marshal(StatusChangedPayload{
		RecipientEmail:       applicant.Email,
		JobTitle:             change.JobTitle,
		NewStatusDescription: change.Status.Description,
		ApplicationID:        change.ApplicationID,
		JobPostingID:         change.JobPostingID,
		ApplicantID:          change.ApplicantID,
		StatusCode:           change.Status.Code,
		ChangedAt:            change.ChangedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode status change payload: %w", err)
	}
	eventID, err := e.newID()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}

	now := e.clock().UTC()
	if err := e.outbox.EnqueueOutboxEvent(ctx, storage.OutboxEvent{
		ID:            eventID,
		EventType:     storage.EventTypeStatusChanged,
		PayloadJSON:   string(payload),
		DedupeKey:     DedupeKey(change.HistoryID),
		Status:        storage.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("enqueue status change: %w", err)
	}
	return nil
}
