package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/filter"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

const selectApplication = `SELECT
	a.id,
	a.job_posting_id,
	a.applicant_id,
	a.resume_url,
	a.cover_letter_url,
	s.id,
	s.code,
	s.description,
	a.version,
	a.created_at,
	a.updated_at
FROM applications a
JOIN statuses s ON s.id = a.status_id`

func scanApplication(scan func(dest ...any) error) (domain.Application, error) {
	var application domain.Application
	if err := scan(
		&application.ID,
		&application.JobPostingID,
		&application.ApplicantID,
		&application.ResumeURL,
		&application.CoverLetterURL,
		&application.Status.ID,
		&application.Status.Code,
		&application.Status.Description,
		&application.Version,
		&application.CreatedAt,
		&application.UpdatedAt,
	); err != nil {
		return domain.Application{}, err
	}
	application.CreatedAt = application.CreatedAt.UTC()
	application.UpdatedAt = application.UpdatedAt.UTC()
	return application, nil
}

// CreateApplication persists a new application.
func (s *Store) CreateApplication(ctx context.Context, application domain.Application) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(application.ID) == "" {
		return fmt.Errorf("application id is required")
	}
	if strings.TrimSpace(application.Status.ID) == "" {
		return fmt.Errorf("application status is required")
	}
	if application.Version <= 0 {
		application.Version = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO applications (
	id, job_posting_id, applicant_id, resume_url, cover_letter_url,
	status_id, version, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`,
		application.ID,
		application.JobPostingID,
		application.ApplicantID,
		application.ResumeURL,
		application.CoverLetterURL,
		application.Status.ID,
		application.Version,
		utc(application.CreatedAt),
		utc(application.UpdatedAt),
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("create application references missing record: %w", storage.ErrNotFound)
		case isUniqueViolation(err):
			return fmt.Errorf("create application %s: %w", application.ID, storage.ErrConflict)
		default:
			return fmt.Errorf("create application: %w", err)
		}
	}
	return nil
}

// GetApplication returns an application by id.
func (s *Store) GetApplication(ctx context.Context, applicationID string) (domain.Application, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Application{}, err
	}
	return getApplication(ctx, s.sqlDB, applicationID)
}

func getApplication(ctx context.Context, q queryRowContexter, applicationID string) (domain.Application, error) {
	row := q.QueryRowContext(ctx, selectApplication+"\nWHERE a.id = $1", strings.TrimSpace(applicationID))
	application, err := scanApplication(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Application{}, storage.ErrNotFound
		}
		return domain.Application{}, fmt.Errorf("get application: %w", err)
	}
	return application, nil
}

// ListApplications returns a page of applications ordered newest first.
func (s *Store) ListApplications(ctx context.Context, query domain.ApplicationQuery) (domain.ApplicationPage, error) {
	if err := s.ready(ctx); err != nil {
		return domain.ApplicationPage{}, err
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}

	// Conditions are assembled with ? and rebound once at the end.
	var (
		clauses []string
		args    []any
	)
	if query.JobPostingID != "" {
		clauses = append(clauses, "a.job_posting_id = ?")
		args = append(args, query.JobPostingID)
	}
	if query.ApplicantID != "" {
		clauses = append(clauses, "a.applicant_id = ?")
		args = append(args, query.ApplicantID)
	}
	cond, err := filter.ParseApplicationFilter(query.Filter, func(t time.Time) any { return t.UTC() })
	if err != nil {
		return domain.ApplicationPage{}, fmt.Errorf("application filter: %w", err)
	}
	if !cond.Empty() {
		clauses = append(clauses, cond.Clause)
		args = append(args, cond.Params...)
	}
	if query.PageToken != "" {
		var cursorCreatedAt time.Time
		err := s.sqlDB.QueryRowContext(ctx, `SELECT created_at FROM applications WHERE id = $1`, query.PageToken).Scan(&cursorCreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ApplicationPage{}, storage.ErrNotFound
			}
			return domain.ApplicationPage{}, fmt.Errorf("resolve page token: %w", err)
		}
		clauses = append(clauses, "(a.created_at, a.id) < (?, ?)")
		args = append(args, cursorCreatedAt, query.PageToken)
	}

	sqlText := selectApplication
	if len(clauses) > 0 {
		sqlText += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	sqlText += "\nORDER BY a.created_at DESC, a.id DESC\nLIMIT ?"
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, rebind(sqlText, 0), args...)
	if err != nil {
		return domain.ApplicationPage{}, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var applications []domain.Application
	for rows.Next() {
		application, err := scanApplication(rows.Scan)
		if err != nil {
			return domain.ApplicationPage{}, fmt.Errorf("scan application: %w", err)
		}
		applications = append(applications, application)
	}
	if err := rows.Err(); err != nil {
		return domain.ApplicationPage{}, fmt.Errorf("iterate applications: %w", err)
	}

	page := domain.ApplicationPage{Applications: applications}
	if len(applications) > pageSize {
		page.Applications = applications[:pageSize]
		page.NextPageToken = applications[pageSize-1].ID
	}
	return page, nil
}

// ApplyTransition updates an application's status and appends a history entry atomically.
func (s *Store) ApplyTransition(ctx context.Context, record domain.TransitionRecord) (domain.Application, domain.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Application{}, domain.HistoryEntry{}, err
	}
	if strings.TrimSpace(record.HistoryID) == "" {
		return domain.Application{}, domain.HistoryEntry{}, fmt.Errorf("history id is required")
	}
	if strings.TrimSpace(record.Status.ID) == "" {
		return domain.Application{}, domain.HistoryEntry{}, fmt.Errorf("status is required")
	}
	// timestamptz keeps microseconds; match what ListHistory will read back.
	changedAt := record.ChangedAt.UTC().Truncate(time.Microsecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, domain.HistoryEntry{}, fmt.Errorf("begin transition: %w", err)
	}
	rollbackWith := func(cause error) (domain.Application, domain.HistoryEntry, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return domain.Application{}, domain.HistoryEntry{}, fmt.Errorf("%w: rollback transition: %v", cause, rollbackErr)
		}
		return domain.Application{}, domain.HistoryEntry{}, cause
	}

	// A concurrent writer holding the row makes this UPDATE wait, then
	// re-check the version predicate against the committed row.
	result, err := tx.ExecContext(ctx, `
UPDATE applications
SET status_id = $1, version = version + 1, updated_at = $2
WHERE id = $3 AND version = $4
`, record.Status.ID, changedAt, record.ApplicationID, record.ExpectedVersion)
	if err != nil {
		if isForeignKeyViolation(err) {
			return rollbackWith(fmt.Errorf("status %s was removed: %w", record.Status.Code, storage.ErrConflict))
		}
		return rollbackWith(fmt.Errorf("update application status: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rollbackWith(fmt.Errorf("update application rows affected: %w", err))
	}
	if affected == 0 {
		var exists int
		lookupErr := tx.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = $1`, record.ApplicationID).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return rollbackWith(storage.ErrNotFound)
		}
		if lookupErr != nil {
			return rollbackWith(fmt.Errorf("check application: %w", lookupErr))
		}
		return rollbackWith(fmt.Errorf("application %s version %d is stale: %w", record.ApplicationID, record.ExpectedVersion, storage.ErrConflict))
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO status_history (id, application_id, status_id, changed_by, changed_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING seq
`, record.HistoryID, record.ApplicationID, record.Status.ID, record.ChangedBy, changedAt).Scan(&seq)
	if err != nil {
		return rollbackWith(fmt.Errorf("append status history: %w", err))
	}

	application, err := getApplication(ctx, tx, record.ApplicationID)
	if err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, domain.HistoryEntry{}, fmt.Errorf("commit transition: %w", err)
	}

	return application, domain.HistoryEntry{
		ID:            record.HistoryID,
		ApplicationID: record.ApplicationID,
		Sequence:      seq,
		Status:        application.Status,
		ChangedBy:     record.ChangedBy,
		ChangedAt:     changedAt,
	}, nil
}

// ListHistory returns an application's history in commit order.
func (s *Store) ListHistory(ctx context.Context, applicationID string) ([]domain.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT h.id, h.seq, h.application_id, s.id, s.code, s.description, h.changed_by, h.changed_at
FROM status_history h
JOIN statuses s ON s.id = h.status_id
WHERE h.application_id = $1
ORDER BY h.seq ASC
`, strings.TrimSpace(applicationID))
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Sequence,
			&entry.ApplicationID,
			&entry.Status.ID,
			&entry.Status.Code,
			&entry.Status.Description,
			&entry.ChangedBy,
			&entry.ChangedAt,
		); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return entries, nil
}
