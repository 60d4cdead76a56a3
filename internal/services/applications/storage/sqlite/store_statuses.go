package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

// GetStatus returns a status by code.
func (s *Store) GetStatus(ctx context.Context, code string) (domain.Status, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Status{}, err
	}
	var status domain.Status
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, code, description FROM statuses WHERE code = ?`, strings.TrimSpace(code)).
		Scan(&status.ID, &status.Code, &status.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Status{}, storage.ErrNotFound
		}
		return domain.Status{}, fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// ListStatuses returns every status ordered by code.
func (s *Store) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, code, description FROM statuses ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]domain.Status, 0, 8)
	for rows.Next() {
		var status domain.Status
		if err := rows.Scan(&status.ID, &status.Code, &status.Description); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}

// InsertStatusIfAbsent inserts a status unless its code already exists.
func (s *Store) InsertStatusIfAbsent(ctx context.Context, status domain.Status) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	status.ID = strings.TrimSpace(status.ID)
	status.Code = strings.TrimSpace(status.Code)
	if status.ID == "" || status.Code == "" {
		return false, fmt.Errorf("status id and code are required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO statuses (id, code, description) VALUES (?, ?, ?)
ON CONFLICT(code) DO NOTHING
`, status.ID, status.Code, status.Description)
	if err != nil {
		return false, fmt.Errorf("insert status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert status rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatusDescription changes a status description.
func (s *Store) UpdateStatusDescription(ctx context.Context, code, description string) (domain.Status, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Status{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE statuses SET description = ? WHERE code = ?`, description, strings.TrimSpace(code))
	if err != nil {
		return domain.Status{}, fmt.Errorf("update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Status{}, fmt.Errorf("update status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Status{}, storage.ErrNotFound
	}
	return s.GetStatus(ctx, code)
}

// DeleteStatus removes an unreferenced status.
func (s *Store) DeleteStatus(ctx context.Context, code string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM statuses WHERE code = ?`, strings.TrimSpace(code))
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("status %s is referenced: %w", code, storage.ErrConflict)
		}
		return fmt.Errorf("delete status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete status rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
