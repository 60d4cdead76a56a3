package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDEncodesRandomUUID(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("len(id) = %d, want 26", len(value))
	}
	if strings.ContainsAny(value, "=ABCDEFGHIJKLMNOPQRSTUVWXYZ01") {
		t.Fatalf("id %q has padding, upper case or non-base32 characters", value)
	}

	raw, err := encoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	parsed, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from bytes: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("version = %d, want 4", parsed.Version())
	}
	if parsed.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %v, want RFC4122", parsed.Variant())
	}
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for range 256 {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, ok := seen[value]; ok {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}
