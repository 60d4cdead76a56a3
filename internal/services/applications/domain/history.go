package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// HistoryEntry records one committed status transition.
type HistoryEntry struct {
	ID            string
	ApplicationID string
	// Sequence is assigned by the store in commit order and defines ledger order.
	Sequence  int64
	Status    Status
	ChangedBy string
	ChangedAt time.Time
}

// HistoryStore reads the append-only ledger. Entries are only ever written by
// TransitionStore.ApplyTransition.
type HistoryStore interface {
	ListHistory(ctx context.Context, applicationID string) ([]HistoryEntry, error)
}

// Ledger reads the status history of applications.
type Ledger struct {
	history      HistoryStore
	applications ApplicationStore
	directory    Directory
	viewers      Authorizer
}

// NewLedger creates a ledger reader.
func NewLedger(history HistoryStore, applications ApplicationStore, directory Directory) *Ledger {
	return &Ledger{
		history:      history,
		applications: applications,
		directory:    directory,
		viewers:      ViewerAuthorizer(),
	}
}

// ListFor returns the history of an application in ascending change order.
func (l *Ledger) ListFor(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	if l == nil || l.history == nil || l.applications == nil {
		return nil, errors.New("history ledger is not configured")
	}
	application, err := getApplication(ctx, l.applications, applicationID)
	if err != nil {
		return nil, err
	}
	return l.list(ctx, application.ID)
}

// ListForActor returns the history of an application visible to actor.
func (l *Ledger) ListForActor(ctx context.Context, actor Actor, applicationID string) ([]HistoryEntry, error) {
	if l == nil || l.history == nil || l.applications == nil || l.directory == nil {
		return nil, errors.New("history ledger is not configured")
	}
	application, posting, err := loadResource(ctx, l.applications, l.directory, applicationID)
	if err != nil {
		return nil, err
	}
	if !l.viewers.Authorize(actor, Resource{Application: application, Posting: posting}) {
		return nil, forbidden("application history is not visible to caller")
	}
	return l.list(ctx, application.ID)
}

func (l *Ledger) list(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	entries, err := l.history.ListHistory(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	SortHistory(entries)
	return entries, nil
}

// SortHistory orders entries by commit sequence. Timestamps are not used
// because wall clocks on different writers can disagree.
func SortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
}
