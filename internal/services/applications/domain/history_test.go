package domain

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
)

func TestLedgerListForActor(t *testing.T) {
	f := newFixture(t)
	application := f.apply(t)
	ctx := context.Background()
	if _, err := f.transitions.Transition(ctx, TransitionInput{ApplicationID: application.ID, StatusCode: StatusUnderReview, Actor: employer}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	for _, actor := range []Actor{admin, employer, seeker} {
		entries, err := f.ledger.ListForActor(ctx, actor, application.ID)
		if err != nil {
			t.Fatalf("ListForActor(%s): %v", actor.UserID, err)
		}
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
	}
	if _, err := f.ledger.ListForActor(ctx, employer2, application.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("ListForActor(E2) error = %v, want FORBIDDEN", err)
	}
	if _, err := f.ledger.ListFor(ctx, "missing"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("ListFor error = %v, want NOT_FOUND", err)
	}
}

func TestLedgerListForEmptyHistory(t *testing.T) {
	f := newFixture(t)
	application := f.apply(t)

	entries, err := f.ledger.ListFor(context.Background(), application.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}

func TestSortHistory(t *testing.T) {
	base := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)
	entries := []HistoryEntry{
		{ID: "c", Sequence: 3, ChangedAt: base.Add(-time.Hour)},
		{ID: "b", Sequence: 2, ChangedAt: base},
		{ID: "a", Sequence: 1, ChangedAt: base.Add(time.Minute)},
	}
	SortHistory(entries)
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].ID != want {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i].ID, want)
		}
	}
}
