package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/storage"
)

const outboxColumns = `
	id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at`

// outboxDue matches pending events whose attempt is due and leases that expired.
const outboxDue = `(
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)`

func outboxDueArgs(now time.Time) []any {
	return []any{storage.OutboxStatusPending, toMillis(now), storage.OutboxStatusLeased, toMillis(now)}
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func scanOutboxEvent(scan scanner) (storage.OutboxEvent, error) {
	var (
		event          storage.OutboxEvent
		nextAttemptAt  int64
		createdAt      int64
		updatedAt      int64
		leaseExpiresAt sql.NullInt64
		processedAt    sql.NullInt64
	)
	if err := scan(
		&event.ID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	if leaseExpiresAt.Valid {
		value := fromMillis(leaseExpiresAt.Int64)
		event.LeaseExpiresAt = &value
	}
	if processedAt.Valid {
		value := fromMillis(processedAt.Int64)
		event.ProcessedAt = &value
	}
	return event, nil
}

// EnqueueOutboxEvent stores an event; a repeated non-empty dedupe key is ignored.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return enqueueOutboxEvent(ctx, s.sqlDB, event)
}

func enqueueOutboxEvent(ctx context.Context, target execContexter, event storage.OutboxEvent) error {
	normalized, err := storage.NormalizeOutboxEvent(event, time.Now())
	if err != nil {
		return err
	}
	_, err = target.ExecContext(ctx, `
INSERT INTO notification_outbox (`+outboxColumns+`
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(dedupe_key) WHERE dedupe_key <> '' DO NOTHING
`,
		normalized.ID,
		normalized.EventType,
		normalized.PayloadJSON,
		normalized.DedupeKey,
		normalized.Status,
		normalized.AttemptCount,
		toMillis(normalized.NextAttemptAt),
		normalized.LeaseOwner,
		nullMillis(normalized.LeaseExpiresAt),
		normalized.LastError,
		nullMillis(normalized.ProcessedAt),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
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
	return getOutboxEvent(ctx, s.sqlDB, id)
}

func getOutboxEvent(ctx context.Context, q queryRowContexter, id string) (storage.OutboxEvent, error) {
	row := q.QueryRowContext(ctx, `SELECT`+outboxColumns+`
FROM notification_outbox
WHERE id = ?`, id)
	event, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// LeaseOutboxEvents leases up to limit due events to consumer.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer, now, err := storage.LeaseRequest(consumer, limit, now, leaseTTL)
	if err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	candidateIDs, err := selectLeaseCandidates(ctx, tx, now, limit)
	if err != nil {
		return nil, err
	}

	leased := make([]storage.OutboxEvent, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		args := append([]any{storage.OutboxStatusLeased, consumer, toMillis(now.Add(leaseTTL)), toMillis(now), id}, outboxDueArgs(now)...)
		result, err := tx.ExecContext(ctx, `
UPDATE notification_outbox
SET
	status = ?,
	lease_owner = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE id = ?
AND `+outboxDue, args...)
		if err != nil {
			return nil, fmt.Errorf("lease outbox event %s: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("lease rows affected for %s: %w", id, err)
		}
		if affected == 0 {
			continue
		}
		event, err := getOutboxEvent(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("reload leased event %s: %w", id, err)
		}
		leased = append(leased, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

func selectLeaseCandidates(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]string, error) {
	args := append(outboxDueArgs(now), limit)
	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM notification_outbox
WHERE `+outboxDue+`
ORDER BY next_attempt_at ASC, created_at ASC, id ASC
LIMIT ?
`, args...)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lease candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	return ids, nil
}

// MarkOutboxSucceeded completes an event leased by consumer.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error {
	processedAt = orNow(processedAt)
	return s.settleLeased(ctx, "succeeded", id, consumer, `
	status = ?,
	last_error = '',
	processed_at = ?,
	updated_at = ?`, storage.OutboxStatusSucceeded, toMillis(processedAt), toMillis(processedAt))
}

// MarkOutboxRetry returns an event leased by consumer to the queue at nextAttemptAt.
func (s *Store) MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error {
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	return s.settleLeased(ctx, "retry", id, consumer, `
	status = ?,
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	last_error = ?,
	processed_at = NULL,
	updated_at = ?`, storage.OutboxStatusPending, toMillis(nextAttemptAt), strings.TrimSpace(lastError), toMillis(time.Now()))
}

// MarkOutboxDead parks an event leased by consumer after its final failure.
func (s *Store) MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error {
	processedAt = orNow(processedAt)
	return s.settleLeased(ctx, "dead", id, consumer, `
	status = ?,
	attempt_count = attempt_count + 1,
	last_error = ?,
	processed_at = ?,
	updated_at = ?`, storage.OutboxStatusDead, strings.TrimSpace(lastError), toMillis(processedAt), toMillis(processedAt))
}

// settleLeased releases a lease held by consumer and applies set. It reports
// ErrNotFound when the event is not currently leased by consumer.
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

	args := append(setArgs, id, storage.OutboxStatusLeased, consumer)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notification_outbox
SET
	lease_owner = '',
	lease_expires_at = NULL,`+set+`
WHERE id = ?
AND status = ?
AND lease_owner = ?
`, args...)
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
