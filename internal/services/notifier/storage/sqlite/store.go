// Package sqlite stores notifier delivery attempts in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/platform/storage/sqlmigrate"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/storage"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed delivery attempt persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.AttemptStore = (*Store)(nil)

const attemptColumns = `id, event_id, event_type, consumer, outcome, attempt_count, last_error, created_at`

// Open opens a notifier SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlmigrate.ApplyMigrations(context.Background(), sqlDB, sqlmigrate.SQLite, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// RecordAttempt persists one delivery attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	attempt.EventID = strings.TrimSpace(attempt.EventID)
	attempt.EventType = strings.TrimSpace(attempt.EventType)
	attempt.Consumer = strings.TrimSpace(attempt.Consumer)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	switch {
	case attempt.EventID == "":
		return fmt.Errorf("event id is required")
	case attempt.EventType == "":
		return fmt.Errorf("event type is required")
	case attempt.Consumer == "":
		return fmt.Errorf("consumer is required")
	}
	switch attempt.Outcome {
	case storage.OutcomeSucceeded, storage.OutcomeRetry, storage.OutcomeDead:
	default:
		return fmt.Errorf("outcome %q is not recognized", attempt.Outcome)
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO delivery_attempts (event_id, event_type, consumer, outcome, attempt_count, last_error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		attempt.EventID,
		attempt.EventType,
		attempt.Consumer,
		attempt.Outcome,
		attempt.AttemptCount,
		attempt.LastError,
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.query(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// ListAttemptsForEvent lists one event's attempts in the order they happened.
func (s *Store) ListAttemptsForEvent(ctx context.Context, eventID string) ([]storage.AttemptRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.query(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts WHERE event_id = ? ORDER BY id`, eventID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]storage.AttemptRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []storage.AttemptRecord
	for rows.Next() {
		var record storage.AttemptRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.EventType,
			&record.Consumer,
			&record.Outcome,
			&record.AttemptCount,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}
