package domain

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu           sync.Mutex
	statuses     map[string]Status
	applications map[string]Application
	history      []HistoryEntry
	users        map[string]User
	postings     map[string]JobPosting
	seq          int64

	applyErr    error
	beforeApply func()
	listQueries []ApplicationQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:     map[string]Status{},
		applications: map[string]Application{},
		users:        map[string]User{},
		postings:     map[string]JobPosting{},
	}
}

func (s *fakeStore) GetStatus(_ context.Context, code string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[code]
	if !ok {
		return Status{}, ErrNotFound
	}
	return status, nil
}

func (s *fakeStore) ListStatuses(context.Context) ([]Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *fakeStore) InsertStatusIfAbsent(_ context.Context, status Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[status.Code]; ok {
		return false, nil
	}
	s.statuses[status.Code] = status
	return true, nil
}

func (s *fakeStore) UpdateStatusDescription(_ context.Context, code, description string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[code]
	if !ok {
		return Status{}, ErrNotFound
	}
	status.Description = description
	s.statuses[code] = status
	return status, nil
}

func (s *fakeStore) DeleteStatus(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[code]; !ok {
		return ErrNotFound
	}
	for _, application := range s.applications {
		if application.Status.Code == code {
			return ErrConflict
		}
	}
	for _, entry := range s.history {
		if entry.Status.Code == code {
			return ErrConflict
		}
	}
	delete(s.statuses, code)
	return nil
}

func (s *fakeStore) CreateApplication(_ context.Context, application Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.postings[application.JobPostingID]; !ok {
		return ErrNotFound
	}
	s.applications[application.ID] = application
	return nil
}

func (s *fakeStore) GetApplication(_ context.Context, applicationID string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	application, ok := s.applications[applicationID]
	if !ok {
		return Application{}, ErrNotFound
	}
	return application, nil
}

func (s *fakeStore) ListApplications(_ context.Context, query ApplicationQuery) (ApplicationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listQueries = append(s.listQueries, query)
	var out []Application
	for _, application := range s.applications {
		if query.JobPostingID != "" && application.JobPostingID != query.JobPostingID {
			continue
		}
		if query.ApplicantID != "" && application.ApplicantID != query.ApplicantID {
			continue
		}
		out = append(out, application)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return ApplicationPage{Applications: out}, nil
}

func (s *fakeStore) ApplyTransition(_ context.Context, record TransitionRecord) (Application, HistoryEntry, error) {
	if s.beforeApply != nil {
		s.beforeApply()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return Application{}, HistoryEntry{}, s.applyErr
	}
	application, ok := s.applications[record.ApplicationID]
	if !ok {
		return Application{}, HistoryEntry{}, ErrNotFound
	}
	if application.Version != record.ExpectedVersion {
		return Application{}, HistoryEntry{}, ErrConflict
	}
	application.Status = record.Status
	application.Version++
	application.UpdatedAt = record.ChangedAt
	s.applications[application.ID] = application
	s.seq++
	entry := HistoryEntry{
		ID:            record.HistoryID,
		ApplicationID: application.ID,
		Sequence:      s.seq,
		Status:        record.Status,
		ChangedBy:     record.ChangedBy,
		ChangedAt:     record.ChangedAt,
	}
	s.history = append(s.history, entry)
	return application, entry, nil
}

func (s *fakeStore) ListHistory(_ context.Context, applicationID string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryEntry
	// Reverse insertion order so the ledger's own ordering is exercised.
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ApplicationID == applicationID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) GetJobPosting(_ context.Context, postingID string) (JobPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posting, ok := s.postings[postingID]
	if !ok {
		return JobPosting{}, ErrNotFound
	}
	return posting, nil
}

func (s *fakeStore) historyFor(applicationID string) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryEntry
	for _, entry := range s.history {
		if entry.ApplicationID == applicationID {
			out = append(out, entry)
		}
	}
	return out
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *seqIDs) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + strconv.Itoa(g.n), nil
}

// fixture seeds the E / E2 / S scenario: employer E owns posting P, employer
// E2 owns nothing relevant, seeker S applies to P.
type fixture struct {
	store        *fakeStore
	clock        *stepClock
	catalog      *Catalog
	applications *ApplicationService
	transitions  *Transitioner
	ledger       *Ledger
	emitted      chan StatusChange
}

var (
	admin     = Actor{UserID: "admin-1", Role: RoleAdmin}
	employer  = Actor{UserID: "employer-e", Role: RoleEmployer}
	employer2 = Actor{UserID: "employer-e2", Role: RoleEmployer}
	seeker    = Actor{UserID: "seeker-s", Role: RoleJobseeker}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	store.postings["posting-p"] = JobPosting{ID: "posting-p", EmployerID: employer.UserID, Title: "Backend Engineer"}
	store.users[seeker.UserID] = User{ID: seeker.UserID, Email: "s@example.com", Role: RoleJobseeker}
	clock := &stepClock{now: time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)}
	ids := &seqIDs{prefix: "id-"}

	catalog := NewCatalog(store, ids.Next)
	if _, err := catalog.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	emitted := make(chan StatusChange, 16)
	f := &fixture{
		store:        store,
		clock:        clock,
		catalog:      catalog,
		applications: NewApplicationService(store, catalog, store, clock.Now, ids.Next),
		ledger:       NewLedger(store, store, store),
		emitted:      emitted,
	}
	f.transitions = NewTransitioner(TransitionerConfig{
		Applications: store,
		Transitions:  store,
		Catalog:      catalog,
		Directory:    store,
		Clock:        clock.Now,
		NewID:        ids.Next,
		Dispatch:     func(fn func()) { fn() },
		Emitter: EmitterFunc(func(_ context.Context, change StatusChange) error {
			emitted <- change
			return nil
		}),
	})
	return f
}

func (f *fixture) apply(t *testing.T) Application {
	t.Helper()
	application, err := f.applications.Create(context.Background(), CreateInput{
		JobPostingID:   "posting-p",
		ApplicantID:    seeker.UserID,
		ResumeURL:      "https://cdn.example.com/resume.pdf",
		CoverLetterURL: "https://cdn.example.com/cover.pdf",
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	return application
}
