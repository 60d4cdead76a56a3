package domain

import (
	"strings"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
)

// TransitionPolicy decides whether an application may move between statuses.
type TransitionPolicy interface {
	Allow(from, to Status) error
}

// PermissiveTransitions allows any status to follow any other, including itself.
type PermissiveTransitions struct{}

// Allow implements TransitionPolicy.
func (PermissiveTransitions) Allow(Status, Status) error {
	return nil
}

// TerminalStatusPolicy forbids leaving the configured terminal statuses.
type TerminalStatusPolicy struct {
	terminal map[string]struct{}
}

// NewTerminalStatusPolicy creates a policy treating codes as terminal.
func NewTerminalStatusPolicy(codes ...string) TerminalStatusPolicy {
	terminal := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code != "" {
			terminal[code] = struct{}{}
		}
	}
	return TerminalStatusPolicy{terminal: terminal}
}

// Allow implements TransitionPolicy.
func (p TerminalStatusPolicy) Allow(from, to Status) error {
	if _, ok := p.terminal[from.Code]; !ok || from.Code == to.Code {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeTransitionNotAllowed,
		"status "+from.Code+" is terminal",
		map[string]string{"From": from.Code, "To": to.Code},
	)
}
