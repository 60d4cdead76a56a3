// Package seed loads YAML fixtures of users, job postings and statuses into
// the applications store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

// Fixture is the document shape of a seed file.
type Fixture struct {
	Users       []User       `yaml:"users"`
	JobPostings []JobPosting `yaml:"job_postings"`
	Statuses    []Status     `yaml:"statuses"`
}

// User is one seeded account.
type User struct {
	ID          string `yaml:"id"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
}

// JobPosting is one seeded posting.
type JobPosting struct {
	ID         string `yaml:"id"`
	EmployerID string `yaml:"employer_id"`
	Title      string `yaml:"title"`
}

// Status overrides or extends the default catalog.
type Status struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

// Store is the persistence surface seeding writes to.
type Store interface {
	domain.StatusStore
	PutUser(ctx context.Context, user domain.User) error
	PutJobPosting(ctx context.Context, posting domain.JobPosting) error
}

// Result counts what Apply wrote.
type Result struct {
	Users            int
	JobPostings      int
	StatusesInserted int
	StatusesUpdated  int
}

// LoadFile reads and validates a fixture file.
func LoadFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a fixture. Unknown keys are rejected.
func Load(r io.Reader) (Fixture, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var fixture Fixture
	if err := decoder.Decode(&fixture); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := fixture.Validate(); err != nil {
		return Fixture{}, err
	}
	return fixture, nil
}

// Validate checks required fields and references between entries.
func (f Fixture) Validate() error {
	var errs []error
	roles := make(map[string]domain.Role, len(f.Users))
	for i, user := range f.Users {
		id := strings.TrimSpace(user.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("users[%d]: id is required", i))
			continue
		}
		if _, dup := roles[id]; dup {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate id %q", i, id))
		}
		if _, err := mail.ParseAddress(strings.TrimSpace(user.Email)); err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: invalid email %q", i, user.Email))
		}
		role, err := domain.ParseRole(user.Role)
		if err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
		}
		roles[id] = role
	}

	postings := make(map[string]struct{}, len(f.JobPostings))
	for i, posting := range f.JobPostings {
		id := strings.TrimSpace(posting.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("job_postings[%d]: id is required", i))
			continue
		}
		if _, dup := postings[id]; dup {
			errs = append(errs, fmt.Errorf("job_postings[%d]: duplicate id %q", i, id))
		}
		postings[id] = struct{}{}
		if strings.TrimSpace(posting.Title) == "" {
			errs = append(errs, fmt.Errorf("job_postings[%d]: title is required", i))
		}
		employerID := strings.TrimSpace(posting.EmployerID)
		if role, ok := roles[employerID]; !ok {
			errs = append(errs, fmt.Errorf("job_postings[%d]: employer %q is not a fixture user", i, employerID))
		} else if role != domain.RoleEmployer && role != domain.RoleAdmin {
			errs = append(errs, fmt.Errorf("job_postings[%d]: user %q cannot own postings", i, employerID))
		}
	}

	for i, status := range f.Statuses {
		if strings.TrimSpace(status.Code) == "" {
			errs = append(errs, fmt.Errorf("statuses[%d]: code is required", i))
		}
		if strings.TrimSpace(status.Description) == "" {
			errs = append(errs, fmt.Errorf("statuses[%d]: description is required", i))
		}
	}
	return errors.Join(errs...)
}

// Apply writes fixture to store after making sure the default statuses exist.
// It is idempotent: users and postings are upserted and statuses are inserted
// or have their description refreshed.
func Apply(ctx context.Context, store Store, fixture Fixture, idGenerator func() (string, error), now time.Time) (Result, error) {
	if store == nil {
		return Result{}, errors.New("store is required")
	}
	if idGenerator == nil {
		return Result{}, errors.New("id generator is required")
	}
	if err := fixture.Validate(); err != nil {
		return Result{}, err
	}
	now = now.UTC()

	var result Result
	inserted, err := domain.NewCatalog(store, idGenerator).EnsureDefaults(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ensure default statuses: %w", err)
	}
	result.StatusesInserted += inserted

	for _, user := range fixture.Users {
		role, _ := domain.ParseRole(user.Role)
		if err := store.PutUser(ctx, domain.User{
			ID:          strings.TrimSpace(user.ID),
			Email:       strings.TrimSpace(user.Email),
			DisplayName: strings.TrimSpace(user.DisplayName),
			Role:        role,
			CreatedAt:   now,
		}); err != nil {
			return result, fmt.Errorf("put user %s: %w", user.ID, err)
		}
		result.Users++
	}
	for _, posting := range fixture.JobPostings {
		if err := store.PutJobPosting(ctx, domain.JobPosting{
			ID:         strings.TrimSpace(posting.ID),
			EmployerID: strings.TrimSpace(posting.EmployerID),
			Title:      strings.TrimSpace(posting.Title),
			CreatedAt:  now,
		}); err != nil {
			return result, fmt.Errorf("put job posting %s: %w", posting.ID, err)
		}
		result.JobPostings++
	}
	for _, status := range fixture.Statuses {
		code := strings.TrimSpace(status.Code)
		description := strings.TrimSpace(status.Description)
		statusID, err := idGenerator()
		if err != nil {
			return result, fmt.Errorf("generate status id: %w", err)
		}
		added, err := store.InsertStatusIfAbsent(ctx, domain.Status{ID: statusID, Code: code, Description: description})
		if err != nil {
			return result, fmt.Errorf("insert status %s: %w", code, err)
		}
		if added {
			result.StatusesInserted++
			continue
		}
		if _, err := store.UpdateStatusDescription(ctx, code, description); err != nil {
			return result, fmt.Errorf("update status %s: %w", code, err)
		}
		result.StatusesUpdated++
	}
	return result, nil
}
