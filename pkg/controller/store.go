package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

const (
	opAuthorize = "AUTHORIZE"
	opRevoke    = "REVOKE"
	opExtend    = "EXTEND"
)

const (
	itemStatusPending = "PENDING"
	itemStatusDead    = "DEAD"
)

// retryItem is a single durable controller operation awaiting delivery
// (spec §4.H). EndUTC is unused by REVOKE.
type retryItem struct {
	ID             uuid.UUID
	OpType         string
	GrantID        uuid.UUID
	MAC            string
	EndUTC         *time.Time
	Attempts       int
	NextAttemptUTC time.Time
	Status         string
	LastError      *string
	CreatedUTC     time.Time
	UpdatedUTC     time.Time
}

// Store persists the controller retry queue in Postgres so operations
// survive an API process restart (spec §4.H).
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a retry-queue Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const itemColumns = `id, op_type, grant_id, mac, end_utc, attempts, next_attempt_utc, status, last_error, created_utc, updated_utc`

func scanItem(row pgx.Row) (*retryItem, error) {
	var it retryItem
	if err := row.Scan(
		&it.ID, &it.OpType, &it.GrantID, &it.MAC, &it.EndUTC, &it.Attempts,
		&it.NextAttemptUTC, &it.Status, &it.LastError, &it.CreatedUTC, &it.UpdatedUTC,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

// Enqueue inserts a new pending retry item due immediately.
func (s *Store) Enqueue(ctx context.Context, opType string, grantID uuid.UUID, mac string, endUTC *time.Time) error {
	_, err := s.dbtx.Exec(ctx, `INSERT INTO controller_retry_queue (
		id, op_type, grant_id, mac, end_utc, attempts, next_attempt_utc, status, created_utc, updated_utc
	) VALUES ($1, $2, $3, $4, $5, 0, now(), $6, now(), now())`,
		uuid.New(), opType, grantID, mac, endUTC, itemStatusPending,
	)
	if err != nil {
		return fmt.Errorf("enqueueing controller retry item: %w", err)
	}
	return nil
}

// ClaimNextDue locks and returns the oldest pending item whose
// next_attempt_utc has passed, skipping rows a concurrent worker already
// holds (FOR UPDATE SKIP LOCKED), so a single logical worker can still be
// run as several processes without double delivery.
func (s *Store) ClaimNextDue(ctx context.Context, tx pgx.Tx) (*retryItem, error) {
	row := tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM controller_retry_queue
		WHERE status = $1 AND next_attempt_utc <= now()
		ORDER BY next_attempt_utc
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		itemStatusPending,
	)
	return scanItem(row)
}

// MarkDelivered deletes a successfully delivered item.
func (s *Store) MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM controller_retry_queue WHERE id = $1`, id)
	return err
}

// MarkRetry records a failed delivery attempt and schedules the next one.
func (s *Store) MarkRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, nextAttempt time.Time, lastErr string) error {
	_, err := tx.Exec(ctx, `UPDATE controller_retry_queue
		SET attempts = attempts + 1, next_attempt_utc = $2, last_error = $3, updated_utc = now()
		WHERE id = $1`,
		id, nextAttempt, lastErr,
	)
	return err
}

// MarkDead marks an item as exhausted its retry budget (spec §4.H
// dead-letter).
func (s *Store) MarkDead(ctx context.Context, tx pgx.Tx, id uuid.UUID, lastErr string) error {
	_, err := tx.Exec(ctx, `UPDATE controller_retry_queue
		SET status = $2, last_error = $3, updated_utc = now()
		WHERE id = $1`,
		id, itemStatusDead, lastErr,
	)
	return err
}

// CountPending returns the number of items still awaiting delivery, for the
// retry queue depth gauge.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.dbtx.QueryRow(ctx, `SELECT count(*) FROM controller_retry_queue WHERE status = $1`, itemStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending controller retry items: %w", err)
	}
	return n, nil
}

// ListDead returns dead-lettered items, newest first, for admin inspection.
func (s *Store) ListDead(ctx context.Context, limit, offset int) ([]*retryItem, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+itemColumns+` FROM controller_retry_queue
		WHERE status = $1
		ORDER BY updated_utc DESC LIMIT $2 OFFSET $3`,
		itemStatusDead, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dead retry items: %w", err)
	}
	defer rows.Close()
	var out []*retryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning retry item row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
