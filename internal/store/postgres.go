package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a unique-constraint insert collides —
// the caller-visible form of §8 invariant 3 (at most one SentRecord per
// dedupe key).
var ErrConflict = errors.New("store: conflict")

// DurableStore is the Postgres-backed half of the Notification Store:
// the audit trail (sent_log), the retry-capable queue
// (queued_notification), and the transcript retry ledger
// (transcript_queue) named in §6's persisted-state layout.
type DurableStore struct {
	db *sql.DB
}

// NewDurableStore wraps an existing *sql.DB connection (see
// internal/database.NewInstrumentedConnection for how it is opened).
func NewDurableStore(db *sql.DB) *DurableStore {
	return &DurableStore{db: db}
}

// RecordSent inserts a SentRecord, relying on a unique constraint over
// (feature, org_id, recipient_id, entity_id, window_bucket) to enforce
// at-most-once delivery under concurrent dispatch attempts (§5 ordering
// guarantee, §8 invariant 3).
func (s *DurableStore) RecordSent(ctx context.Context, rec SentRecord, windowBucket string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_log (feature, org_id, recipient_id, entity_id, window_bucket, sent_at, slack_ts, channel_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.Feature, rec.OrgID, rec.SlackUserID, rec.EntityID, windowBucket, rec.SentAt, rec.SlackTS, rec.ChannelID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("record sent: %w", err)
	}
	return nil
}

// FindRecentSent returns the most recent SentRecord for the dedupe key
// within the given duration, or ErrNotFound if none exists.
func (s *DurableStore) FindRecentSent(ctx context.Context, feature, orgID, slackUserID, entityID string, within time.Duration) (*SentRecord, error) {
	var rec SentRecord
	rec.Feature, rec.OrgID, rec.SlackUserID, rec.EntityID = feature, orgID, slackUserID, entityID

	row := s.db.QueryRowContext(ctx, `
		SELECT sent_at, slack_ts, channel_id
		FROM sent_log
		WHERE feature = $1 AND org_id = $2 AND recipient_id = $3 AND entity_id = $4
		  AND sent_at >= $5
		ORDER BY sent_at DESC
		LIMIT 1
	`, feature, orgID, slackUserID, entityID, time.Now().Add(-within))

	if err := row.Scan(&rec.SentAt, &rec.SlackTS, &rec.ChannelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find recent sent: %w", err)
	}
	return &rec, nil
}

// CountRecent tallies sent_log rows in the current hour and day windows
// for a user, and returns the most recent send, for the policy engine's
// hourly/daily-cap and cooldown checks.
func (s *DurableStore) CountRecent(ctx context.Context, orgID, recipientID string, hourStart, dayStart time.Time) (RecentCounts, error) {
	var counts RecentCounts

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sent_at >= $3),
			COUNT(*) FILTER (WHERE sent_at >= $4),
			MAX(sent_at)
		FROM sent_log
		WHERE org_id = $1 AND recipient_id = $2
	`, orgID, recipientID, hourStart, dayStart).Scan(&counts.Hour, &counts.Day, &counts.LastSentAt)
	if err != nil {
		return RecentCounts{}, fmt.Errorf("count recent: %w", err)
	}
	return counts, nil
}

// Enqueue inserts a QueuedNotification in pending status.
func (s *DurableStore) Enqueue(ctx context.Context, n QueuedNotification) (uuid.UUID, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_notification (
			id, user_id, org_id, feature, priority, payload_json, scheduled_for,
			status, attempts, last_attempt_at, last_error, dedupe_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, n.ID, n.UserID, n.OrgID, n.Feature, n.Priority, []byte(n.Payload), n.ScheduledFor,
		n.Status, n.Attempts, n.LastAttemptAt, n.LastError, n.DedupeKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue notification: %w", err)
	}
	return n.ID, nil
}

// LeaseBatch selects up to limit pending/scheduled rows whose
// scheduled_for has arrived and increments their attempt counter and
// last_attempt_at in one transaction. The rows are locked (FOR UPDATE
// SKIP LOCKED) only until that transaction commits: leaseDuration is not
// applied and the rows keep their status, so a later call can select the
// same rows again.
func (s *DurableStore) LeaseBatch(ctx context.Context, feature string, limit int, leaseDuration time.Duration) ([]QueuedNotification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lease batch begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, user_id, org_id, feature, priority, payload_json, scheduled_for,
			status, attempts, last_attempt_at, last_error, dedupe_key
		FROM queued_notification
		WHERE status IN ('pending', 'scheduled')
		  AND scheduled_for <= NOW()
		  AND (feature = $1 OR $1 = '')
		ORDER BY scheduled_for ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, query, feature, limit)
	if err != nil {
		return nil, fmt.Errorf("lease batch select: %w", err)
	}

	var items []QueuedNotification
	var ids []uuid.UUID
	for rows.Next() {
		var n QueuedNotification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrgID, &n.Feature, &n.Priority, &payload,
			&n.ScheduledFor, &n.Status, &n.Attempts, &n.LastAttemptAt, &n.LastError, &n.DedupeKey); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("lease batch scan: %w", err)
		}
		n.Payload = payload
		items = append(items, n)
		ids = append(ids, n.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) > 0 {
		now := time.Now()
		_, err = tx.ExecContext(ctx, `
			UPDATE queued_notification
			SET attempts = attempts + 1, last_attempt_at = $2
			WHERE id = ANY($1)
		`, pq.Array(ids), now)
		if err != nil {
			return nil, fmt.Errorf("lease batch update: %w", err)
		}
		for i := range items {
			items[i].Attempts++
			items[i].LastAttemptAt = &now
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("lease batch commit: %w", err)
	}
	return items, nil
}

// Settle transitions a leased QueuedNotification to a terminal or
// retryable status. A QueuedNotification already in a terminal status is
// left untouched (terminal states never revert, §3 lifecycle invariant).
func (s *DurableStore) Settle(ctx context.Context, id uuid.UUID, status Status, lastErr *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queued_notification
		SET status = $2, last_error = $3
		WHERE id = $1 AND status NOT IN ('sent', 'cancelled', 'dead_letter')
	`, id, status, lastErr)
	if err != nil {
		return fmt.Errorf("settle notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveToDeadLetter marks a queued notification dead_letter (SPEC_FULL
// supplemented feature 1) once it has exhausted max attempts or hit a
// permanent-upstream error.
func (s *DurableStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	return s.Settle(ctx, id, StatusDeadLetter, &reason)
}

// ReplayDLQ resets a bounded batch of dead-lettered notifications back
// to pending for reprocessing.
func (s *DurableStore) ReplayDLQ(ctx context.Context, limit int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queued_notification
		SET status = 'pending', attempts = 0, last_error = NULL
		WHERE id IN (
			SELECT id FROM queued_notification WHERE status = 'dead_letter' ORDER BY last_attempt_at ASC LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("replay dlq: %w", err)
	}
	return result.RowsAffected()
}

// GetDLQStats reports dead-letter set size, broken down by feature, and the
// oldest pending item — surfaced on the metrics/health endpoints and
// used to drive Sentry alerting thresholds.
func (s *DurableStore) GetDLQStats(ctx context.Context) (*DLQStats, error) {
	stats := &DLQStats{CountByFeature: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_notification WHERE status = 'dead_letter'`).
		Scan(&stats.TotalCount); err != nil {
		return nil, fmt.Errorf("dlq stats count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT feature, COUNT(*) FROM queued_notification WHERE status = 'dead_letter' GROUP BY feature
	`)
	if err != nil {
		return nil, fmt.Errorf("dlq stats by feature: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var feature string
		var count int64
		if err := rows.Scan(&feature, &count); err != nil {
			continue
		}
		stats.CountByFeature[feature] = count
	}

	var oldest sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(last_attempt_at) FROM queued_notification WHERE status = 'dead_letter'`).
		Scan(&oldest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dlq stats oldest: %w", err)
	}
	if oldest.Valid {
		stats.OldestItem = &oldest.Time
	}

	return stats, nil
}

// ReconcileStale finds queued notifications stuck past staleness in a
// non-terminal status with no settle call ever received, and DLQs them
// for operator follow-up (SPEC_FULL supplemented feature 2).
func (s *DurableStore) ReconcileStale(ctx context.Context, staleness time.Duration, limit int) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM queued_notification
		WHERE status IN ('pending', 'scheduled')
		  AND last_attempt_at IS NOT NULL
		  AND last_attempt_at < $1
		LIMIT $2
	`, time.Now().Add(-staleness), limit)
	if err != nil {
		return 0, fmt.Errorf("reconcile stale select: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		_ = s.MoveToDeadLetter(ctx, id, "reconciliation_sweep_stale_lease")
	}
	return len(ids), nil
}

// UpsertTranscriptQueueItem inserts or refreshes a transcript retry row.
func (s *DurableStore) UpsertTranscriptQueueItem(ctx context.Context, item TranscriptQueueItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_queue (call_id, org_id, attempts, max_attempts, last_attempt_at, last_error)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (call_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_error = EXCLUDED.last_error
	`, item.CallID, item.OrgID, item.Attempts, item.MaxAttempts, item.LastAttemptAt, item.LastError)
	if err != nil {
		return fmt.Errorf("upsert transcript queue item: %w", err)
	}
	return nil
}

// DeleteTranscriptQueueItem removes a transcript queue row — called once
// the call's transcript is ready or has just been saved. Rows that
// exhaust their attempts are kept, with their last error recorded.
func (s *DurableStore) DeleteTranscriptQueueItem(ctx context.Context, callID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_queue WHERE call_id = $1`, callID)
	if err != nil {
		return fmt.Errorf("delete transcript queue item: %w", err)
	}
	return nil
}

// LeaseTranscriptQueueBatch returns up to limit transcript queue items
// with attempts below their max, for the Transcript Queue Worker's
// bounded per-tick processing (≤50 items).
func (s *DurableStore) LeaseTranscriptQueueBatch(ctx context.Context, limit int) ([]TranscriptQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, org_id, attempts, max_attempts, last_attempt_at, last_error
		FROM transcript_queue
		WHERE attempts < max_attempts
		ORDER BY last_attempt_at ASC NULLS FIRST
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("lease transcript queue batch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []TranscriptQueueItem
	for rows.Next() {
		var item TranscriptQueueItem
		if err := rows.Scan(&item.CallID, &item.OrgID, &item.Attempts, &item.MaxAttempts,
			&item.LastAttemptAt, &item.LastError); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PayloadAs unmarshals a QueuedNotification's raw payload into dst.
func PayloadAs(n QueuedNotification, dst interface{}) error {
	return json.Unmarshal(n.Payload, dst)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
