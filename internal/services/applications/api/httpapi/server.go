// Package httpapi serves the applications JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/platform/requestctx"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

const maxBodyBytes = 1 << 20

// StatusCatalog is the catalog surface the API exposes.
type StatusCatalog interface {
	List(ctx context.Context) ([]domain.Status, error)
	UpdateDescription(ctx context.Context, actor domain.Actor, code, description string) (domain.Status, error)
	Delete(ctx context.Context, actor domain.Actor, code string) error
}

// Applications is the application read/create surface the API exposes.
type Applications interface {
	Create(ctx context.Context, in domain.CreateInput) (domain.Application, error)
	GetForActor(ctx context.Context, actor domain.Actor, applicationID string) (domain.Application, error)
	ListForApplicant(ctx context.Context, in domain.ListInput) (domain.ApplicationPage, error)
	ListForJobPostingAsActor(ctx context.Context, actor domain.Actor, in domain.ListInput) (domain.ApplicationPage, error)
}

// Transitions changes application status.
type Transitions interface {
	Transition(ctx context.Context, in domain.TransitionInput) (domain.Application, error)
}

// History reads the status ledger.
type History interface {
	ListForActor(ctx context.Context, actor domain.Actor, applicationID string) ([]domain.HistoryEntry, error)
}

// MetricsExporter serves /metrics and records request metrics.
type MetricsExporter interface {
	RequestObserver
	Handler() http.Handler
}

// Config wires the API handler.
type Config struct {
	Catalog      StatusCatalog
	Applications Applications
	Transitions  Transitions
	History      History
	Verifier     TokenVerifier
	Metrics      MetricsExporter
	Logger       logrus.FieldLogger
	// TransitionLimiter bounds status changes per user; nil disables it.
	TransitionLimiter *UserRateLimiter
}

type server struct {
	catalog      StatusCatalog
	applications Applications
	transitions  Transitions
	history      History
	logger       logrus.FieldLogger
}

// NewHandler builds the API router.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Catalog == nil || cfg.Applications == nil || cfg.Transitions == nil || cfg.History == nil {
		return nil, errors.New("applications api requires catalog, applications, transitions and history")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("applications api requires a token verifier")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &server{
		catalog:      cfg.Catalog,
		applications: cfg.Applications,
		transitions:  cfg.Transitions,
		history:      cfg.History,
		logger:       logger,
	}

	authed := func(h http.HandlerFunc, extra ...Middleware) http.Handler {
		return Chain(h, append([]Middleware{Authenticate(cfg.Verifier, logger)}, extra...)...)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	var observer RequestObserver
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
		observer = cfg.Metrics
	}
	mux.Handle("GET /v1/statuses", authed(s.listStatuses))
	mux.Handle("PATCH /v1/statuses/{code}", authed(s.updateStatus))
	mux.Handle("DELETE /v1/statuses/{code}", authed(s.deleteStatus))
	mux.Handle("POST /v1/jobs/{job_id}/applications", authed(s.createApplication))
	mux.Handle("GET /v1/jobs/{job_id}/applications", authed(s.listJobApplications))
	mux.Handle("GET /v1/applications", authed(s.listMyApplications))
	mux.Handle("GET /v1/applications/{application_id}", authed(s.getApplication))
	mux.Handle("POST /v1/applications/{application_id}/status", authed(s.transition, RateLimit(cfg.TransitionLimiter, logger)))
	mux.Handle("GET /v1/applications/{application_id}/history", authed(s.listHistory))

	return Chain(mux, RequestID(), AccessLog(logger, observer), RecoverPanic(logger)), nil
}

type statusResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type applicationResponse struct {
	ID                string    `json:"id"`
	JobPostingID      string    `json:"job_posting_id"`
	ApplicantID       string    `json:"applicant_id"`
	ResumeURL         string    `json:"resume_url"`
	CoverLetterURL    string    `json:"cover_letter_url"`
	StatusCode        string    `json:"status_code"`
	StatusDescription string    `json:"status_description"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type applicationPageResponse struct {
	Applications  []applicationResponse `json:"applications"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type transitionResponse struct {
	ApplicationID     string `json:"application_id"`
	StatusCode        string `json:"status_code"`
	StatusDescription string `json:"status_description"`
	Message           string `json:"message"`
}

type historyEntryResponse struct {
	StatusCode string    `json:"status_code"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by"`
}

func toApplicationResponse(application domain.Application) applicationResponse {
	return applicationResponse{
		ID:                application.ID,
		JobPostingID:      application.JobPostingID,
		ApplicantID:       application.ApplicantID,
		ResumeURL:         application.ResumeURL,
		CoverLetterURL:    application.CoverLetterURL,
		StatusCode:        application.Status.Code,
		StatusDescription: application.Status.Description,
		Version:           application.Version,
		CreatedAt:         application.CreatedAt,
		UpdatedAt:         application.UpdatedAt,
	}
}

func toPageResponse(page domain.ApplicationPage) applicationPageResponse {
	out := applicationPageResponse{
		Applications:  make([]applicationResponse, 0, len(page.Applications)),
		NextPageToken: page.NextPageToken,
	}
	for _, application := range page.Applications {
		out.Applications = append(out.Applications, toApplicationResponse(application))
	}
	return out
}

// actorFrom returns the authenticated caller placed by Authenticate.
func actorFrom(r *http.Request) domain.Actor {
	principal, _ := requestctx.PrincipalFromContext(r.Context())
	return domain.Actor{UserID: principal.UserID, Role: domain.Role(principal.Role)}
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "decode request body", err)
	}
	return nil
}

func listInput(r *http.Request) (domain.ListInput, error) {
	query := r.URL.Query()
	in := domain.ListInput{
		Filter:    query.Get("filter"),
		PageToken: query.Get("page_token"),
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return domain.ListInput{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "page_size must be a non-negative integer", map[string]string{"Field": "page_size"})
		}
		in.PageSize = size
	}
	return in, nil
}

func (s *server) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	out := make([]statusResponse, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, statusResponse{Code: status.Code, Description: status.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status, err := s.catalog.UpdateDescription(r.Context(), actorFrom(r), r.PathValue("code"), body.Description)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Code: status.Code, Description: status.Description})
}

func (s *server) deleteStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.Context(), actorFrom(r), r.PathValue("code")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) createApplication(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResumeURL      string `json:"resume_url"`
		CoverLetterURL string `json:"cover_letter_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	application, err := s.applications.Create(r.Context(), domain.CreateInput{
		JobPostingID:   r.PathValue("job_id"),
		ApplicantID:    actorFrom(r).UserID,
		ResumeURL:      strings.TrimSpace(body.ResumeURL),
		CoverLetterURL: strings.TrimSpace(body.CoverLetterURL),
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(application))
}

func (s *server) listJobApplications(w http.ResponseWriter, r *http.Request) {
	in, err := listInput(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	in.JobPostingID = r.PathValue("job_id")
	page, err := s.applications.ListForJobPostingAsActor(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (s *server) listMyApplications(w http.ResponseWriter, r *http.Request) {
	in, err := listInput(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	in.ApplicantID = actorFrom(r).UserID
	page, err := s.applications.ListForApplicant(r.Context(), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (s *server) getApplication(w http.ResponseWriter, r *http.Request) {
	application, err := s.applications.GetForActor(r.Context(), actorFrom(r), r.PathValue("application_id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(application))
}

func (s *server) transition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StatusCode string `json:"status_code"`
		// Status is accepted as an alias of status_code.
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	code := strings.TrimSpace(body.StatusCode)
	if code == "" {
		code = strings.TrimSpace(body.Status)
	}
	application, err := s.transitions.Transition(r.Context(), domain.TransitionInput{
		ApplicationID: r.PathValue("application_id"),
		StatusCode:    code,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		ApplicationID:     application.ID,
		StatusCode:        application.Status.Code,
		StatusDescription: application.Status.Description,
		Message:           "Application status updated.",
	})
}

func (s *server) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.ListForActor(r.Context(), actorFrom(r), r.PathValue("application_id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyEntryResponse{
			StatusCode: entry.Status.Code,
			ChangedAt:  entry.ChangedAt,
			ChangedBy:  entry.ChangedBy,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
