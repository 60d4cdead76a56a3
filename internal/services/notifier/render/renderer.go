// Package render produces localized email copy for application notifications.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	keyStatusChangedSubject = "notification.status_changed.email_subject"
	keyStatusChangedBody    = "notification.status_changed.email_body"

	defaultStatusChangedSubject = "Update on Your Job Application for %s"
	defaultStatusChangedBody    = "Dear applicant,\n\nYour job application status has been updated to: %s.\n\nBest regards,\nJob Board Team"
)

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

// Input carries the payload fields a status change email shows.
type Input struct {
	JobTitle             string
	NewStatusDescription string
}

// Output is localized email copy.
type Output struct {
	Subject string
	Body    string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewLocalizer returns a printer for the best supported match of tag, which may
// be a BCP 47 tag or an Accept-Language value. English is the fallback.
func NewLocalizer(tag string) *message.Printer {
	tags, _, err := language.ParseAcceptLanguage(strings.TrimSpace(tag))
	if err != nil || len(tags) == 0 {
		return message.NewPrinter(language.English)
	}
	_, idx, _ := matcher.Match(tags...)
	return message.NewPrinter(supported[idx])
}

// Render returns the status change email for in.
func Render(loc Localizer, in Input) Output {
	title := strings.TrimSpace(in.JobTitle)
	status := strings.TrimSpace(in.NewStatusDescription)
	return Output{
		Subject: localizeWithFallback(loc, keyStatusChangedSubject, defaultStatusChangedSubject, title),
		Body:    localizeWithFallback(loc, keyStatusChangedBody, defaultStatusChangedBody, status),
	}
}

func localizeWithFallback(loc Localizer, key, fallback string, args ...any) string {
	if loc == nil {
		return fmt.Sprintf(fallback, args...)
	}
	value := strings.TrimSpace(loc.Sprintf(key, args...))
	if value == "" || value == key {
		return fmt.Sprintf(fallback, args...)
	}
	return value
}
