package domain

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/notify"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

// decodeStatusChangedPayload enforces the fields every status change email needs.
func decodeStatusChangedPayload(event storage.OutboxEvent) (notify.StatusChangedPayload, error) {
	if strings.TrimSpace(event.EventType) != storage.EventTypeStatusChanged {
		return notify.StatusChangedPayload{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}

	var payload notify.StatusChangedPayload
	if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
		return notify.StatusChangedPayload{}, fmt.Errorf("decode status change payload: %w", err)
	}
	payload.RecipientEmail = strings.TrimSpace(payload.RecipientEmail)
	payload.JobTitle = strings.TrimSpace(payload.JobTitle)
	payload.NewStatusDescription = strings.TrimSpace(payload.NewStatusDescription)
	if payload.RecipientEmail == "" {
		return notify.StatusChangedPayload{}, fmt.Errorf("recipient_email is required in status change payload")
	}
	if _, err := mail.ParseAddress(payload.RecipientEmail); err != nil {
		return notify.StatusChangedPayload{}, fmt.Errorf("recipient_email %q is invalid: %w", payload.RecipientEmail, err)
	}
	if payload.JobTitle == "" {
		return notify.StatusChangedPayload{}, fmt.Errorf("job_title is required in status change payload")
	}
	if payload.NewStatusDescription == "" {
		return notify.StatusChangedPayload{}, fmt.Errorf("new_status_description is required in status change payload")
	}
	return payload, nil
}
