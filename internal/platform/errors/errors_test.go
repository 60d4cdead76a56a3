package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeConflict, "apply transition", stderrors.New("version mismatch"))
	if !stderrors.Is(err, New(CodeConflict, "")) {
		t.Fatal("expected code match")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected code mismatch")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeUnknown, "load application", cause)
	if got, want := err.Error(), "load application: boom"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if got := Wrap(CodeUnknown, "", cause).Error(); got != "boom" {
		t.Fatalf("Error() = %q, want %q", got, "boom")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: stderrors.New("x"), want: CodeUnknown},
		{name: "domain", err: New(CodeForbidden, "nope"), want: CodeForbidden},
		{name: "wrapped", err: fmt.Errorf("outer: %w", New(CodeInvalidStatus, "bad")), want: CodeInvalidStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("CodeOf() = %q, want %q", got, tc.want)
			}
		})
	}
	if !HasCode(New(CodeNotFound, "x"), CodeNotFound) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(nil, CodeNotFound) {
		t.Fatal("expected HasCode(nil) to be false")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeNotFound:             http.StatusNotFound,
		CodeInvalidStatus:        http.StatusBadRequest,
		CodeInvalidArgument:      http.StatusBadRequest,
		CodeForbidden:            http.StatusForbidden,
		CodeUnauthenticated:      http.StatusUnauthorized,
		CodeConflict:             http.StatusConflict,
		CodeTransitionNotAllowed: http.StatusConflict,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeConfiguration:        http.StatusInternalServerError,
		CodeUnknown:              http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
	if !CodeConfiguration.Internal() {
		t.Fatal("expected configuration errors to be internal")
	}
	if CodeForbidden.Internal() {
		t.Fatal("expected forbidden errors to be public")
	}
}
