package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/render"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
	// DedupeKey lets transports that support it drop repeated deliveries.
	DedupeKey string
}

// Mailer delivers email. Errors marked Permanent are not retried.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// StatusChangedHandler emails the applicant when their application changes status.
type StatusChangedHandler struct {
	mailer    Mailer
	localizer render.Localizer
}

// NewStatusChangedHandler creates a handler. A nil localizer uses English copy.
func NewStatusChangedHandler(mailer Mailer, localizer render.Localizer) *StatusChangedHandler {
	if localizer == nil {
		localizer = render.NewLocalizer("")
	}
	return &StatusChangedHandler{mailer: mailer, localizer: localizer}
}

// Handle renders and sends the status change email for event.
func (h *StatusChangedHandler) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if h == nil || h.mailer == nil {
		return Permanent(fmt.Errorf("mailer is not configured"))
	}
	payload, err := decodeStatusChangedPayload(event)
	if err != nil {
		return Permanent(err)
	}

	out := render.Render(h.localizer, render.Input{
		JobTitle:             payload.JobTitle,
		NewStatusDescription: payload.NewStatusDescription,
	})
	return h.mailer.Send(ctx, Message{
		To:        payload.RecipientEmail,
		Subject:   out.Subject,
		Body:      out.Body,
		DedupeKey: strings.TrimSpace(event.DedupeKey),
	})
}
