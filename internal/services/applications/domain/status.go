package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
)

// Default status codes seeded into every catalog.
const (
	StatusPending            = "Pending"
	StatusUnderReview        = "Under Review"
	StatusInterviewScheduled = "Interview Scheduled"
	StatusHired              = "Hired"
	StatusRejected           = "Rejected"
)

// Status is a catalog entry an application can be in.
type Status struct {
	ID          string
	Code        string
	Description string
}

// DefaultStatuses returns the seeded catalog in workflow order.
func DefaultStatuses() []Status {
	return []Status{
		{Code: StatusPending, Description: "Application received and awaiting review"},
		{Code: StatusUnderReview, Description: "Application is being reviewed by the employer"},
		{Code: StatusInterviewScheduled, Description: "Employer has scheduled an interview"},
		{Code: StatusHired, Description: "Candidate has been hired"},
		{Code: StatusRejected, Description: "Candidate has been rejected"},
	}
}

// StatusStore persists catalog entries.
type StatusStore interface {
	GetStatus(ctx context.Context, code string) (Status, error)
	ListStatuses(ctx context.Context) ([]Status, error)
	// InsertStatusIfAbsent inserts status unless its code exists and reports whether it inserted.
	InsertStatusIfAbsent(ctx context.Context, status Status) (bool, error)
	UpdateStatusDescription(ctx context.Context, code, description string) (Status, error)
	// DeleteStatus returns ErrConflict while any application or history entry references code.
	DeleteStatus(ctx context.Context, code string) error
}

// Catalog resolves and maintains the set of valid application statuses.
type Catalog struct {
	store StatusStore
	newID func() (string, error)
}

// NewCatalog creates a catalog backed by store.
func NewCatalog(store StatusStore, idGenerator func() (string, error)) *Catalog {
	return &Catalog{store: store, newID: idGenerator}
}

// Resolve returns the status for code.
func (c *Catalog) Resolve(ctx context.Context, code string) (Status, error) {
	if c == nil || c.store == nil {
		return Status{}, errors.New("status catalog is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Status{}, notFound("status", nil)
	}
	status, err := c.store.GetStatus(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, apperrors.WrapWithMetadata(apperrors.CodeNotFound, "status "+code+" not found", map[string]string{"Resource": "status"}, err)
		}
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// List returns every status ordered by code.
func (c *Catalog) List(ctx context.Context) ([]Status, error) {
	if c == nil || c.store == nil {
		return nil, errors.New("status catalog is not configured")
	}
	statuses, err := c.store.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return statuses, nil
}

// EnsureDefaults inserts missing default statuses and returns how many it added.
// Existing descriptions are left untouched.
func (c *Catalog) EnsureDefaults(ctx context.Context) (int, error) {
	if c == nil || c.store == nil {
		return 0, errors.New("status catalog is not configured")
	}
	if c.newID == nil {
		return 0, errors.New("status id generator is not configured")
	}
	inserted := 0
	for _, status := range DefaultStatuses() {
		statusID, err := c.newID()
		if err != nil {
			return inserted, fmt.Errorf("generate status id: %w", err)
		}
		status.ID = statusID
		ok, err := c.store.InsertStatusIfAbsent(ctx, status)
		if err != nil {
			return inserted, fmt.Errorf("seed status %s: %w", status.Code, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// UpdateDescription changes the human-readable description of a status.
func (c *Catalog) UpdateDescription(ctx context.Context, actor Actor, code, description string) (Status, error) {
	if c == nil || c.store == nil {
		return Status{}, errors.New("status catalog is not configured")
	}
	if !(AdminAuthorizer{}).Authorize(actor, Resource{}) {
		return Status{}, forbidden("only admins can edit statuses")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return Status{}, invalidArgument("description", "description is required")
	}
	status, err := c.store.UpdateStatusDescription(ctx, strings.TrimSpace(code), description)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, notFound("status", err)
		}
		return Status{}, fmt.Errorf("update status: %w", err)
	}
	return status, nil
}

// Delete removes an unreferenced status.
func (c *Catalog) Delete(ctx context.Context, actor Actor, code string) error {
	if c == nil || c.store == nil {
		return errors.New("status catalog is not configured")
	}
	if !(AdminAuthorizer{}).Authorize(actor, Resource{}) {
		return forbidden("only admins can delete statuses")
	}
	err := c.store.DeleteStatus(ctx, strings.TrimSpace(code))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return notFound("status", err)
	case errors.Is(err, ErrConflict):
		return apperrors.WrapWithMetadata(apperrors.CodeConflict, "status "+code+" is referenced", map[string]string{"Resource": "status"}, err)
	default:
		return fmt.Errorf("delete status: %w", err)
	}
}
