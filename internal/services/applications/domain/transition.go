package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/platform/timeouts"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ansa-jobboard/jobboard/internal/services/applications/domain"

// TransitionInput requests a status change.
type TransitionInput struct {
	ApplicationID string
	StatusCode    string
	Actor         Actor
}

// TransitionRecord is the write applied atomically by TransitionStore.
type TransitionRecord struct {
	ApplicationID string
	// ExpectedVersion is the application version the caller read.
	ExpectedVersion int64
	Status          Status
	ChangedBy       string
	ChangedAt       time.Time
	HistoryID       string
}

// TransitionStore applies a transition in one transaction: the application's
// status, version and updated_at change and one history entry is appended.
// It returns ErrConflict when the stored version no longer matches and
// ErrNotFound when the application is gone; neither case writes anything.
type TransitionStore interface {
	ApplyTransition(ctx context.Context, record TransitionRecord) (Application, HistoryEntry, error)
}

// TransitionerConfig wires a Transitioner.
type TransitionerConfig struct {
	Applications ApplicationStore
	Transitions  TransitionStore
	Catalog      *Catalog
	Directory    Directory
	// Authorizer defaults to TransitionAuthorizer.
	Authorizer Authorizer
	// Policy defaults to PermissiveTransitions.
	Policy   TransitionPolicy
	Emitter  Emitter
	Observer TransitionObserver
	Logger   logrus.FieldLogger
	Clock    func() time.Time
	NewID    func() (string, error)
	// Dispatch runs post-commit notification work; defaults to a new goroutine.
	Dispatch    func(func())
	EmitTimeout time.Duration
}

// Transitioner is the only writer of application status.
type Transitioner struct {
	applications ApplicationStore
	transitions  TransitionStore
	catalog      *Catalog
	directory    Directory
	authorizer   Authorizer
	policy       TransitionPolicy
	emitter      Emitter
	observer     TransitionObserver
	logger       logrus.FieldLogger
	clock        func() time.Time
	newID        func() (string, error)
	dispatch     func(func())
	emitTimeout  time.Duration
	tracer       trace.Tracer
	// pending counts dispatched notifications that have not finished.
	pending sync.WaitGroup
}

// NewTransitioner creates a Transitioner from cfg.
func NewTransitioner(cfg TransitionerConfig) *Transitioner {
	t := &Transitioner{
		applications: cfg.Applications,
		transitions:  cfg.Transitions,
		catalog:      cfg.Catalog,
		directory:    cfg.Directory,
		authorizer:   cfg.Authorizer,
		policy:       cfg.Policy,
		emitter:      cfg.Emitter,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		newID:        cfg.NewID,
		dispatch:     cfg.Dispatch,
		emitTimeout:  cfg.EmitTimeout,
		tracer:       otel.Tracer(tracerName),
	}
	if t.authorizer == nil {
		t.authorizer = TransitionAuthorizer()
	}
	if t.policy == nil {
		t.policy = PermissiveTransitions{}
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.dispatch == nil {
		t.dispatch = func(fn func()) { go fn() }
	}
	if t.emitTimeout <= 0 {
		t.emitTimeout = timeouts.NotificationDispatch
	}
	return t
}

// Transition moves an application to a new status on behalf of an actor.
//
// Checks run in order: the application must exist (NOT_FOUND), the status must
// be in the catalog (INVALID_STATUS), and the actor must be authorized
// (FORBIDDEN). A concurrent transition that commits first yields CONFLICT.
// Notification happens after commit and never affects the result.
func (t *Transitioner) Transition(ctx context.Context, in TransitionInput) (Application, error) {
	ctx, span := t.tracer.Start(ctx, "applications.Transition", trace.WithAttributes(
		attribute.String("application.id", in.ApplicationID),
		attribute.String("actor.id", in.Actor.UserID),
		attribute.String("actor.role", string(in.Actor.Role)),
	))
	defer span.End()

	application, change, err := t.transition(ctx, in)
	t.observeTransition(change.Status.Code, outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return Application{}, err
	}
	span.SetAttributes(attribute.String("status.code", change.Status.Code))

	t.logger.WithFields(logrus.Fields{
		"application_id": application.ID,
		"from_status":    change.PreviousStatus.Code,
		"to_status":      change.Status.Code,
		"changed_by":     change.ChangedBy,
		"version":        application.Version,
	}).Info("application status changed")

	t.emit(ctx, change)
	return application, nil
}

func (t *Transitioner) transition(ctx context.Context, in TransitionInput) (Application, StatusChange, error) {
	if t == nil || t.applications == nil || t.transitions == nil || t.catalog == nil || t.directory == nil {
		return Application{}, StatusChange{}, errors.New("transitioner is not configured")
	}
	if t.newID == nil {
		return Application{}, StatusChange{}, errors.New("history id generator is not configured")
	}

	application, err := getApplication(ctx, t.applications, in.ApplicationID)
	if err != nil {
		return Application{}, StatusChange{}, err
	}

	code := strings.TrimSpace(in.StatusCode)
	target, err := t.catalog.Resolve(ctx, code)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return Application{}, StatusChange{}, invalidStatus(code, err)
		}
		return Application{}, StatusChange{}, err
	}

	resolved := StatusChange{Status: target}
	posting, err := t.directory.GetJobPosting(ctx, application.JobPostingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, resolved, notFound("job posting", err)
		}
		return Application{}, resolved, fmt.Errorf("get job posting: %w", err)
	}
	if !t.authorizer.Authorize(in.Actor, Resource{Application: application, Posting: posting}) {
		return Application{}, resolved, forbidden("actor may not change this application's status")
	}

	if err := t.policy.Allow(application.Status, target); err != nil {
		return Application{}, resolved, err
	}

	historyID, err := t.newID()
	if err != nil {
		return Application{}, resolved, fmt.Errorf("generate history id: %w", err)
	}
	changedAt := t.clock().UTC()
	// Keep updated_at monotonic per application when clocks step backwards.
	if changedAt.Before(application.UpdatedAt) {
		changedAt = application.UpdatedAt.UTC()
	}
	updated, entry, err := t.transitions.ApplyTransition(ctx, TransitionRecord{
		ApplicationID:   application.ID,
		ExpectedVersion: application.Version,
		Status:          target,
		ChangedBy:       in.Actor.UserID,
		ChangedAt:       changedAt,
		HistoryID:       historyID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return Application{}, resolved, apperrors.WrapWithMetadata(apperrors.CodeConflict, "application was modified concurrently", map[string]string{"Resource": "application"}, err)
		case errors.Is(err, ErrNotFound):
			return Application{}, resolved, notFound("application", err)
		default:
			return Application{}, resolved, fmt.Errorf("apply transition: %w", err)
		}
	}

	return updated, StatusChange{
		HistoryID:      entry.ID,
		ApplicationID:  updated.ID,
		JobPostingID:   posting.ID,
		JobTitle:       posting.Title,
		ApplicantID:    updated.ApplicantID,
		PreviousStatus: application.Status,
		Status:         entry.Status,
		ChangedBy:      entry.ChangedBy,
		ChangedAt:      entry.ChangedAt,
	}, nil
}

func (t *Transitioner) emit(ctx context.Context, change StatusChange) {
	if t.emitter == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	t.pending.Add(1)
	t.dispatch(func() {
		defer t.pending.Done()
		emitCtx, cancel := context.WithTimeout(detached, t.emitTimeout)
		defer cancel()
		fields := logrus.Fields{
			"application_id": change.ApplicationID,
			"history_id":     change.HistoryID,
			"status":         change.Status.Code,
		}
		defer func() {
			if r := recover(); r != nil {
				t.logger.WithFields(fields).Errorf("status change notification panicked: %v", r)
				t.observeNotification(OutcomeError)
			}
		}()
		if err := t.emitter.Emit(emitCtx, change); err != nil {
			t.logger.WithFields(fields).WithError(err).Warn("status change notification failed")
			t.observeNotification(OutcomeError)
			return
		}
		t.observeNotification(OutcomeCommitted)
	})
}

// Wait blocks until every dispatched notification has finished or ctx ends.
// Call it before closing the stores the emitter writes to.
func (t *Transitioner) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for status change notifications: %w", ctx.Err())
	}
}

func (t *Transitioner) observeTransition(statusCode, outcome string) {
	if t == nil || t.observer == nil {
		return
	}
	t.observer.ObserveTransition(statusCode, outcome)
}

func (t *Transitioner) observeNotification(outcome string) {
	if t.observer == nil {
		return
	}
	t.observer.ObserveNotification(outcome)
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCommitted
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNotFound:
		return OutcomeNotFound
	case apperrors.CodeInvalidStatus:
		return OutcomeInvalidStatus
	case apperrors.CodeForbidden:
		return OutcomeForbidden
	case apperrors.CodeTransitionNotAllowed:
		return OutcomeNotAllowed
	case apperrors.CodeConflict:
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
