package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/filter"
)

// Page size bounds for application listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Application is a job seeker's application to a job posting.
type Application struct {
	ID             string
	JobPostingID   string
	ApplicantID    string
	ResumeURL      string
	CoverLetterURL string
	Status         Status
	// Version increments on every mutation and guards concurrent transitions.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput describes a new application.
type CreateInput struct {
	JobPostingID   string
	ApplicantID    string
	ResumeURL      string
	CoverLetterURL string
	// StatusCode overrides the initial Pending status when set.
	StatusCode string
}

// ListInput selects a page of applications.
type ListInput struct {
	JobPostingID string
	ApplicantID  string
	// Filter is an AIP-160 expression over status, applicant_id, job_posting_id,
	// applied_at and updated_at.
	Filter    string
	PageSize  int
	PageToken string
}

// ApplicationQuery is the normalized list request handed to the store.
type ApplicationQuery struct {
	JobPostingID string
	ApplicantID  string
	Filter       string
	PageSize     int
	PageToken    string
}

// ApplicationPage is one page of applications, newest first.
type ApplicationPage struct {
	Applications  []Application
	NextPageToken string
}

// ApplicationStore persists applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, application Application) error
	GetApplication(ctx context.Context, applicationID string) (Application, error)
	// ListApplications returns ErrNotFound when the page token does not name an application.
	ListApplications(ctx context.Context, query ApplicationQuery) (ApplicationPage, error)
}

// ApplicationService creates and reads applications.
type ApplicationService struct {
	store     ApplicationStore
	catalog   *Catalog
	directory Directory
	viewers   Authorizer
	clock     func() time.Time
	newID     func() (string, error)
}

// NewApplicationService creates an application service.
func NewApplicationService(store ApplicationStore, catalog *Catalog, directory Directory, clock func() time.Time, idGenerator func() (string, error)) *ApplicationService {
	if clock == nil {
		clock = time.Now
	}
	return &ApplicationService{
		store:     store,
		catalog:   catalog,
		directory: directory,
		viewers:   ViewerAuthorizer(),
		clock:     clock,
		newID:     idGenerator,
	}
}

// Create persists a new application. Without an explicit status code the
// application starts in Pending. Creation does not write a history entry.
func (s *ApplicationService) Create(ctx context.Context, in CreateInput) (Application, error) {
	if s == nil || s.store == nil || s.directory == nil {
		return Application{}, errors.New("application service is not configured")
	}
	if s.newID == nil {
		return Application{}, errors.New("application id generator is not configured")
	}
	in.JobPostingID = strings.TrimSpace(in.JobPostingID)
	in.ApplicantID = strings.TrimSpace(in.ApplicantID)
	if in.JobPostingID == "" {
		return Application{}, invalidArgument("job_posting_id", "job posting id is required")
	}
	if in.ApplicantID == "" {
		return Application{}, invalidArgument("applicant_id", "applicant id is required")
	}

	posting, err := s.directory.GetJobPosting(ctx, in.JobPostingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, notFound("job posting", err)
		}
		return Application{}, fmt.Errorf("get job posting: %w", err)
	}
	if posting.EmployerID == in.ApplicantID {
		return Application{}, forbidden("employers cannot apply to their own job posting")
	}

	status, err := s.initialStatus(ctx, in.StatusCode)
	if err != nil {
		return Application{}, err
	}

	applicationID, err := s.newID()
	if err != nil {
		return Application{}, fmt.Errorf("generate application id: %w", err)
	}
	now := s.clock().UTC()
	application := Application{
		ID:             applicationID,
		JobPostingID:   in.JobPostingID,
		ApplicantID:    in.ApplicantID,
		ResumeURL:      strings.TrimSpace(in.ResumeURL),
		CoverLetterURL: strings.TrimSpace(in.CoverLetterURL),
		Status:         status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateApplication(ctx, application); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, notFound("applicant", err)
		}
		return Application{}, fmt.Errorf("create application: %w", err)
	}
	return application, nil
}

func (s *ApplicationService) initialStatus(ctx context.Context, code string) (Status, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		status, err := s.catalog.Resolve(ctx, StatusPending)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return Status{}, apperrors.WrapWithMetadata(apperrors.CodeConfiguration, "default status Pending is not seeded", map[string]string{"StatusCode": StatusPending}, err)
			}
			return Status{}, err
		}
		return status, nil
	}
	status, err := s.catalog.Resolve(ctx, code)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return Status{}, invalidStatus(code, err)
		}
		return Status{}, err
	}
	return status, nil
}

// Get returns an application by id.
func (s *ApplicationService) Get(ctx context.Context, applicationID string) (Application, error) {
	if s == nil || s.store == nil {
		return Application{}, errors.New("application service is not configured")
	}
	return getApplication(ctx, s.store, applicationID)
}

// GetForActor returns an application visible to actor.
func (s *ApplicationService) GetForActor(ctx context.Context, actor Actor, applicationID string) (Application, error) {
	if s == nil || s.store == nil || s.directory == nil {
		return Application{}, errors.New("application service is not configured")
	}
	application, posting, err := loadResource(ctx, s.store, s.directory, applicationID)
	if err != nil {
		return Application{}, err
	}
	if !s.viewers.Authorize(actor, Resource{Application: application, Posting: posting}) {
		return Application{}, forbidden("application is not visible to caller")
	}
	return application, nil
}

// ListForJobPosting returns applications for a posting, newest first.
func (s *ApplicationService) ListForJobPosting(ctx context.Context, in ListInput) (ApplicationPage, error) {
	if strings.TrimSpace(in.JobPostingID) == "" {
		return ApplicationPage{}, invalidArgument("job_posting_id", "job posting id is required")
	}
	return s.list(ctx, in)
}

// ListForApplicant returns applications submitted by an applicant, newest first.
func (s *ApplicationService) ListForApplicant(ctx context.Context, in ListInput) (ApplicationPage, error) {
	if strings.TrimSpace(in.ApplicantID) == "" {
		return ApplicationPage{}, invalidArgument("applicant_id", "applicant id is required")
	}
	return s.list(ctx, in)
}

// ListForJobPostingAsActor lists a posting's applications the way the board
// shows them: admins and the owning employer see every application, anyone
// else only their own.
func (s *ApplicationService) ListForJobPostingAsActor(ctx context.Context, actor Actor, in ListInput) (ApplicationPage, error) {
	if s == nil || s.directory == nil {
		return ApplicationPage{}, errors.New("application service is not configured")
	}
	postingID := strings.TrimSpace(in.JobPostingID)
	if postingID == "" {
		return ApplicationPage{}, invalidArgument("job_posting_id", "job posting id is required")
	}
	posting, err := s.directory.GetJobPosting(ctx, postingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ApplicationPage{}, notFound("job posting", err)
		}
		return ApplicationPage{}, fmt.Errorf("get job posting: %w", err)
	}
	if !TransitionAuthorizer().Authorize(actor, Resource{Posting: posting}) {
		in.ApplicantID = actor.UserID
	}
	return s.list(ctx, in)
}

func (s *ApplicationService) list(ctx context.Context, in ListInput) (ApplicationPage, error) {
	if s == nil || s.store == nil {
		return ApplicationPage{}, errors.New("application service is not configured")
	}
	if err := filter.Validate(in.Filter); err != nil {
		return ApplicationPage{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidArgument, "invalid filter", map[string]string{"Field": "filter"}, err)
	}
	query := ApplicationQuery{
		JobPostingID: strings.TrimSpace(in.JobPostingID),
		ApplicantID:  strings.TrimSpace(in.ApplicantID),
		Filter:       strings.TrimSpace(in.Filter),
		PageSize:     normalizePageSize(in.PageSize),
		PageToken:    strings.TrimSpace(in.PageToken),
	}
	page, err := s.store.ListApplications(ctx, query)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ApplicationPage{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidArgument, "unknown page token", map[string]string{"Field": "page_token"}, err)
		}
		return ApplicationPage{}, fmt.Errorf("list applications: %w", err)
	}
	return page, nil
}

func normalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

func getApplication(ctx context.Context, store ApplicationStore, applicationID string) (Application, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Application{}, notFound("application", nil)
	}
	application, err := store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, notFound("application", err)
		}
		return Application{}, fmt.Errorf("get application: %w", err)
	}
	return application, nil
}

func loadResource(ctx context.Context, store ApplicationStore, directory Directory, applicationID string) (Application, JobPosting, error) {
	application, err := getApplication(ctx, store, applicationID)
	if err != nil {
		return Application{}, JobPosting{}, err
	}
	posting, err := directory.GetJobPosting(ctx, application.JobPostingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, JobPosting{}, notFound("job posting", err)
		}
		return Application{}, JobPosting{}, fmt.Errorf("get job posting: %w", err)
	}
	return application, posting, nil
}
