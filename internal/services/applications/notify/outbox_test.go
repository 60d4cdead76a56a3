package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	events []storage.OutboxEvent
	err    error
}

func (f *fakeOutbox) EnqueueOutboxEvent(_ context.Context, event storage.OutboxEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeUsers map[string]domain.User

func (f fakeUsers) GetUser(_ context.Context, userID string) (domain.User, error) {
	user, ok := f[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

var changedAt = time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)

func hiredChange() domain.StatusChange {
	return domain.StatusChange{
		HistoryID:     "hist-1",
		ApplicationID: "app-1",
		JobPostingID:  "posting-p",
		JobTitle:      "Backend Engineer",
		ApplicantID:   "seeker-s",
		Status:        domain.Status{ID: "status-4", Code: domain.StatusHired, Description: "Candidate has been hired"},
		ChangedBy:     "employer-e",
		ChangedAt:     changedAt,
	}
}

func newEmitter(outbox *fakeOutbox) *OutboxEmitter {
	users := fakeUsers{"seeker-s": {ID: "seeker-s", Email: "s@example.com"}}
	return NewOutboxEmitter(outbox, users, func() (string, error) { return "evt-1", nil }, func() time.Time { return changedAt })
}

func TestEmitEnqueuesPayload(t *testing.T) {
	outbox := &fakeOutbox{}
	require.NoError(t, newEmitter(outbox).Emit(context.Background(), hiredChange()))

	require.Len(t, outbox.events, 1)
	event := outbox.events[0]
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, storage.EventTypeStatusChanged, event.EventType)
	assert.Equal(t, "status_changed:hist-1", event.DedupeKey)
	assert.Equal(t, storage.OutboxStatusPending, event.Status)
	assert.True(t, event.NextAttemptAt.Equal(changedAt))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(event.PayloadJSON), &payload))
	assert.Equal(t, "s@example.com", payload["recipient_email"])
	assert.Equal(t, "Backend Engineer", payload["job_title"])
	assert.Equal(t, "Candidate has been hired", payload["new_status_description"])
	assert.Equal(t, "Hired", payload["status_code"])
}

func TestEmitFailsWithoutApplicant(t *testing.T) {
	outbox := &fakeOutbox{}
	change := hiredChange()
	change.ApplicantID = "ghost"

	err := newEmitter(outbox).Emit(context.Background(), change)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, outbox.events)
}

func TestEmitPropagatesEnqueueError(t *testing.T) {
	outbox := &fakeOutbox{err: errors.New("disk full")}
	err := newEmitter(outbox).Emit(context.Background(), hiredChange())
	require.ErrorContains(t, err, "disk full")
}

func TestEmitRequiresHistoryID(t *testing.T) {
	change := hiredChange()
	change.HistoryID = " "
	require.Error(t, newEmitter(&fakeOutbox{}).Emit(context.Background(), change))
}

func TestNilEmitterIsNotConfigured(t *testing.T) {
	var emitter *OutboxEmitter
	require.Error(t, emitter.Emit(context.Background(), hiredChange()))
}
