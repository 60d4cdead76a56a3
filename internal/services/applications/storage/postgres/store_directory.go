package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

// GetUser returns a mirrored user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return domain.User{}, err
	}
	var (
		user domain.User
		role string
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, display_name, role, created_at
FROM users
WHERE id = $1
`, strings.TrimSpace(userID)).Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, storage.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.Role = domain.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// PutUser inserts or refreshes a mirrored user.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, role, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	email = EXCLUDED.email,
	display_name = EXCLUDED.display_name,
	role = EXCLUDED.role
`, user.ID, strings.TrimSpace(user.Email), user.DisplayName, string(user.Role), utc(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetJobPosting returns a mirrored job posting by id.
func (s *Store) GetJobPosting(ctx context.Context, postingID string) (domain.JobPosting, error) {
	if err := s.ready(ctx); err != nil {
		return domain.JobPosting{}, err
	}
	var posting domain.JobPosting
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, employer_id, title, created_at
FROM job_postings
WHERE id = $1
`, strings.TrimSpace(postingID)).Scan(&posting.ID, &posting.EmployerID, &posting.Title, &posting.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JobPosting{}, storage.ErrNotFound
		}
		return domain.JobPosting{}, fmt.Errorf("get job posting: %w", err)
	}
	posting.CreatedAt = posting.CreatedAt.UTC()
	return posting, nil
}

// PutJobPosting inserts or refreshes a mirrored job posting.
func (s *Store) PutJobPosting(ctx context.Context, posting domain.JobPosting) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(posting.ID) == "" {
		return fmt.Errorf("job posting id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO job_postings (id, employer_id, title, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	employer_id = EXCLUDED.employer_id,
	title = EXCLUDED.title
`, posting.ID, posting.EmployerID, posting.Title, utc(posting.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("job posting employer %s: %w", posting.EmployerID, storage.ErrNotFound)
		}
		return fmt.Errorf("put job posting: %w", err)
	}
	return nil
}
