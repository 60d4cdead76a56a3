package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

const outboxColumns = `id, event_type, payload_json, dedupe_key, status, attempt_count,
	next_attempt_at, lease_owner, lease_expires_at, last_error, processed_at,
	created_at, updated_at`

func scanOutboxEvent(scan func(dest ...any) error) (storage.OutboxEvent, error) {
	var (
		event          storage.OutboxEvent
		leaseExpiresAt sql.NullTime
		processedAt    sql.NullTime
	)
	if err := scan(
		&event.ID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&event.Status,
		&event.AttemptCount,
		&event.NextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.NextAttemptAt = event.NextAttemptAt.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	if leaseExpiresAt.Valid {
		value := leaseExpiresAt.Time.UTC()
		event.LeaseExpiresAt = &value
	}
	if processedAt.Valid {
		value := processedAt.Time.UTC()
		event.ProcessedAt = &value
	}
	return event, nil
}

// EnqueueOutboxEvent stores an event; a repeated non-empty dedupe key is ignored.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := storage.NormalizeOutboxEvent(event, time.Now())
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_outbox (`+outboxColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (dedupe_key) WHERE dedupe_key <> '' DO NOTHING
`,
		normalized.ID,
		normalized.EventType,
		normalized.PayloadJSON,
		normalized.DedupeKey,
		normalized.Status,
		normalized.AttemptCount,
		utc(normalized.NextAttemptAt),
		normalized.LeaseOwner,
		nullTime(normalized.LeaseExpiresAt),
		normalized.LastError,
		nullTime(normalized.ProcessedAt),
		utc(normalized.CreatedAt),
		utc(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// GetOutboxEvent returns one outbox event by id.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OutboxEvent{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM notification_outbox WHERE id = $1`, id)
	event, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// LeaseOutboxEvents leases up to limit due events to consumer. Rows locked by
// another leasing transaction are skipped.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer, now, err := storage.LeaseRequest(consumer, limit, now, leaseTTL)
	if err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
WITH due AS (
	SELECT id
	FROM notification_outbox
	WHERE (status = $1 AND next_attempt_at <= $3)
	   OR (status = $2 AND lease_expires_at IS NOT NULL AND lease_expires_at <= $3)
	ORDER BY next_attempt_at ASC, created_at ASC, id ASC
	LIMIT $4
	FOR UPDATE SKIP LOCKED
)
UPDATE notification_outbox o
SET status = $2, lease_owner = $5, lease_expires_at = $6, updated_at = $3
FROM due
WHERE o.id = due.id
RETURNING o.id, o.event_type, o.payload_json, o.dedupe_key, o.status, o.attempt_count,
	o.next_attempt_at, o.lease_owner, o.lease_expires_at, o.last_error, o.processed_at,
	o.created_at, o.updated_at
`,
		storage.OutboxStatusPending,
		storage.OutboxStatusLeased,
		now,
		limit,
		consumer,
		now.Add(leaseTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("lease outbox events: %w", err)
	}
	defer rows.Close()

	leased := make([]storage.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan leased outbox event: %w", err)
		}
		leased = append(leased, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leased outbox events: %w", err)
	}
	return leased, nil
}

// MarkOutboxSucceeded completes an event leased by consumer.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error {
	processedAt = orNow(processedAt)
	return s.settleLeased(ctx, "succeeded", id, consumer,
		`status = ?, last_error = '', processed_at = ?, updated_at = ?`,
		storage.OutboxStatusSucceeded, processedAt, processedAt)
}

// MarkOutboxRetry returns an event leased by consumer to the queue at nextAttemptAt.
func (s *Store) MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error {
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	return s.settleLeased(ctx, "retry", id, consumer,
		`status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?, last_error = ?, processed_at = NULL, updated_at = ?`,
		storage.OutboxStatusPending, nextAttemptAt.UTC(), strings.TrimSpace(lastError), time.Now().UTC())
}

// MarkOutboxDead parks an event leased by consumer after its final failure.
func (s *Store) MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error {
	processedAt = orNow(processedAt)
	return s.settleLeased(ctx, "dead", id, consumer,
		`status = ?, attempt_count = attempt_count + 1, last_error = ?, processed_at = ?, updated_at = ?`,
		storage.OutboxStatusDead, strings.TrimSpace(lastError), processedAt, processedAt)
}

func (s *Store) settleLeased(ctx context.Context, op, id, consumer, set string, setArgs ...any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}

	query := rebind(`UPDATE notification_outbox
SET lease_owner = '', lease_expires_at = NULL, `+set+`
WHERE id = ? AND status = ? AND lease_owner = ?`, 0)
	args := append(setArgs, id, storage.OutboxStatusLeased, consumer)
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox %s rows affected: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func orNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
