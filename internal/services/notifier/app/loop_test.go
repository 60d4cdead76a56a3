package app

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/notify"
	appstorage "github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
	appsqlite "github.com/ansa-jobboard/jobboard/internal/services/applications/storage/sqlite"
	notifierdomain "github.com/ansa-jobboard/jobboard/internal/services/notifier/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/storage"
	notifiersqlite "github.com/ansa-jobboard/jobboard/internal/services/notifier/storage/sqlite"
)

var loopNow = time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC)

type settled struct {
	kind      string
	id        string
	nextAt    time.Time
	lastError string
}

type fakeOutbox struct {
	mu      sync.Mutex
	events  []appstorage.OutboxEvent
	settled []settled
	leases  int
	markErr error
}

func (f *fakeOutbox) LeaseOutboxEvents(_ context.Context, _ string, limit int, _ time.Time, _ time.Duration) ([]appstorage.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leases++
	n := min(limit, len(f.events))
	out := f.events[:n]
	f.events = f.events[n:]
	return out, nil
}

func (f *fakeOutbox) settle(entry settled) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.settled = append(f.settled, entry)
	return nil
}

func (f *fakeOutbox) MarkOutboxSucceeded(_ context.Context, id, _ string, _ time.Time) error {
	return f.settle(settled{kind: storage.OutcomeSucceeded, id: id})
}

func (f *fakeOutbox) MarkOutboxRetry(_ context.Context, id, _ string, nextAttemptAt time.Time, lastError string) error {
	return f.settle(settled{kind: storage.OutcomeRetry, id: id, nextAt: nextAttemptAt, lastError: lastError})
}

func (f *fakeOutbox) MarkOutboxDead(_ context.Context, id, _ string, lastError string, _ time.Time) error {
	return f.settle(settled{kind: storage.OutcomeDead, id: id, lastError: lastError})
}

type recordingAttempts struct {
	attempts []Attempt
}

func (r *recordingAttempts) RecordAttempt(_ context.Context, attempt Attempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveDelivery(_ string, outcome string) {
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func newTestLoop(outbox OutboxClient, recorder AttemptRecorder, handler EventHandler, cfg Config, observer DeliveryObserver) *Loop {
	loop := New(outbox, recorder, map[string]EventHandler{appstorage.EventTypeStatusChanged: handler, " ": handler}, cfg, nil, observer)
	loop.clock = func() time.Time { return loopNow }
	return loop
}

func event(id string, attempts int) appstorage.OutboxEvent {
	return appstorage.OutboxEvent{ID: id, EventType: appstorage.EventTypeStatusChanged, AttemptCount: attempts}
}

func TestRunOnceSettlesEachOutcome(t *testing.T) {
	outbox := &fakeOutbox{events: []appstorage.OutboxEvent{
		event("ok", 0),
		event("transient", 0),
		event("permanent", 0),
		event("exhausted", 2),
		{ID: "unknown", EventType: "other.v1"},
	}}
	recorder := &recordingAttempts{}
	observer := &countingObserver{}
	handler := EventHandlerFunc(func(_ context.Context, e appstorage.OutboxEvent) error {
		switch e.ID {
		case "ok":
			return nil
		case "permanent":
			return notifierdomain.Permanent(errors.New("bad payload"))
		default:
			return errors.New("smtp timeout")
		}
	})
	loop := newTestLoop(outbox, recorder, handler, Config{MaxAttempts: 3, RetryBackoff: time.Second, RetryMaxDelay: time.Minute}, observer)

	processed, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 5 {
		t.Fatalf("processed = %d, want 5", processed)
	}

	want := []settled{
		{kind: storage.OutcomeSucceeded, id: "ok"},
		{kind: storage.OutcomeRetry, id: "transient", nextAt: loopNow.Add(time.Second), lastError: "smtp timeout"},
		{kind: storage.OutcomeDead, id: "permanent", lastError: "bad payload"},
		{kind: storage.OutcomeDead, id: "exhausted", lastError: "smtp timeout"},
		{kind: storage.OutcomeDead, id: "unknown", lastError: `no handler for event type "other.v1"`},
	}
	if len(outbox.settled) != len(want) {
		t.Fatalf("settled = %+v", outbox.settled)
	}
	for i := range want {
		if outbox.settled[i] != want[i] {
			t.Fatalf("settled[%d] = %+v, want %+v", i, outbox.settled[i], want[i])
		}
	}

	if len(recorder.attempts) != 5 {
		t.Fatalf("attempts = %d, want 5", len(recorder.attempts))
	}
	if recorder.attempts[3].AttemptCount != 3 || recorder.attempts[3].Outcome != storage.OutcomeDead {
		t.Fatalf("exhausted attempt = %+v", recorder.attempts[3])
	}
	if recorder.attempts[0].Error != "" || recorder.attempts[1].Error != "smtp timeout" {
		t.Fatalf("attempt errors = %q %q", recorder.attempts[0].Error, recorder.attempts[1].Error)
	}
	if observer.outcomes[storage.OutcomeSucceeded] != 1 || observer.outcomes[storage.OutcomeRetry] != 1 || observer.outcomes[storage.OutcomeDead] != 3 {
		t.Fatalf("observed = %v", observer.outcomes)
	}
}

func TestHandlerPanicIsRetried(t *testing.T) {
	outbox := &fakeOutbox{events: []appstorage.OutboxEvent{event("boom", 0)}}
	loop := newTestLoop(outbox, nil, EventHandlerFunc(func(context.Context, appstorage.OutboxEvent) error {
		panic("nil map")
	}), Config{}, nil)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.settled) != 1 || outbox.settled[0].kind != storage.OutcomeRetry {
		t.Fatalf("settled = %+v, want one retry", outbox.settled)
	}
}

func TestSettleFailureSkipsAttemptRecord(t *testing.T) {
	outbox := &fakeOutbox{events: []appstorage.OutboxEvent{event("ok", 0)}, markErr: appstorage.ErrNotFound}
	recorder := &recordingAttempts{}
	loop := newTestLoop(outbox, recorder, EventHandlerFunc(func(context.Context, appstorage.OutboxEvent) error { return nil }), Config{}, nil)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(recorder.attempts) != 0 {
		t.Fatalf("attempts = %+v, want none after lost lease", recorder.attempts)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	loop := New(&fakeOutbox{}, nil, nil, Config{RetryBackoff: time.Second, RetryMaxDelay: 4 * time.Second}, nil, nil)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, expected := range want {
		if got := loop.retryDelay(i + 1); got != expected {
			t.Fatalf("retryDelay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{RetryBackoff: time.Minute, RetryMaxDelay: time.Second}.normalized()
	if cfg.Consumer != defaultConsumer || cfg.BatchSize != defaultBatchSize || cfg.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RetryMaxDelay != time.Minute {
		t.Fatalf("retry max delay = %v, want it raised to the base backoff", cfg.RetryMaxDelay)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{}
	loop := newTestLoop(outbox, nil, EventHandlerFunc(func(context.Context, appstorage.OutboxEvent) error { return nil }), Config{PollInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		outbox.mu.Lock()
		leases := outbox.leases
		outbox.mu.Unlock()
		if leases >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop did not poll")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunRequiresOutbox(t *testing.T) {
	if err := New(nil, nil, nil, Config{}, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error without outbox")
	}
}

type capturingMailer struct {
	mu   sync.Mutex
	sent []notifierdomain.Message
}

func (m *capturingMailer) Send(_ context.Context, msg notifierdomain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func TestStatusChangeIsEmailedOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := appsqlite.Open(filepath.Join(dir, "applications.sqlite"))
	if err != nil {
		t.Fatalf("open applications store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	attempts, err := notifiersqlite.Open(filepath.Join(dir, "notifier.sqlite"))
	if err != nil {
		t.Fatalf("open notifier store: %v", err)
	}
	t.Cleanup(func() { _ = attempts.Close() })

	for _, user := range []domain.User{
		{ID: "employer-e", Email: "e@example.com", Role: domain.RoleEmployer, CreatedAt: loopNow},
		{ID: "seeker-s", Email: "s@example.com", Role: domain.RoleJobseeker, CreatedAt: loopNow},
	} {
		if err := store.PutUser(ctx, user); err != nil {
			t.Fatalf("put user: %v", err)
		}
	}
	if err := store.PutJobPosting(ctx, domain.JobPosting{ID: "posting-p", EmployerID: "employer-e", Title: "Backend Engineer", CreatedAt: loopNow}); err != nil {
		t.Fatalf("put posting: %v", err)
	}

	n := 0
	nextID := func() (string, error) {
		n++
		return "id-" + strconv.Itoa(n), nil
	}
	clock := func() time.Time { return loopNow }
	catalog := domain.NewCatalog(store, nextID)
	if _, err := catalog.EnsureDefaults(ctx); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	application, err := domain.NewApplicationService(store, catalog, store, clock, nextID).Create(ctx, domain.CreateInput{JobPostingID: "posting-p", ApplicantID: "seeker-s"})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	transitioner := domain.NewTransitioner(domain.TransitionerConfig{
		Applications: store,
		Transitions:  store,
		Catalog:      catalog,
		Directory:    store,
		Emitter:      notify.NewOutboxEmitter(store, store, nextID, clock),
		Clock:        clock,
		NewID:        nextID,
		Dispatch:     func(fn func()) { fn() },
	})
	if _, err := transitioner.Transition(ctx, domain.TransitionInput{
		ApplicationID: application.ID,
		StatusCode:    domain.StatusHired,
		Actor:         domain.Actor{UserID: "employer-e", Role: domain.RoleEmployer},
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	mailer := &capturingMailer{}
	loop := New(store, newAttemptStoreRecorder(attempts, "notifier-test"), map[string]EventHandler{
		appstorage.EventTypeStatusChanged: notifierdomain.NewStatusChangedHandler(mailer, nil),
	}, Config{Consumer: "notifier-test"}, nil, nil)
	loop.clock = clock

	if processed, err := loop.RunOnce(ctx); err != nil || processed != 1 {
		t.Fatalf("first run = %d, %v", processed, err)
	}
	if processed, err := loop.RunOnce(ctx); err != nil || processed != 0 {
		t.Fatalf("second run = %d, %v; delivered events must not be leased again", processed, err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "s@example.com" || msg.Subject != "Update on Your Job Application for Backend Engineer" {
		t.Fatalf("message = %+v", msg)
	}

	records, err := attempts.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != storage.OutcomeSucceeded || records[0].Consumer != "notifier-test" {
		t.Fatalf("attempts = %+v", records)
	}
}
