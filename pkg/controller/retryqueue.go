package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/db"
	"github.com/tykeal/homeassistant-captive-portal/internal/notify"
	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
)

// systemActor identifies audit entries written by the background retry
// worker rather than by an authenticated HTTP caller.
const systemActor = "system:controller-retry-queue"

// MaxAttempts is the retry budget before an item is dead-lettered (spec
// §4.H).
const MaxAttempts = 5

// pollInterval is how often the worker checks for due items when the queue
// is otherwise empty.
const pollInterval = 2 * time.Second

// Queue is the durable, Postgres-backed controller operation queue. It
// implements grant.ControllerQueue so pkg/grant can enqueue without
// importing this package. Grounded on pkg/reservation.Poller's single
// ticker-driven worker loop, itself grounded on the teacher's
// RunScheduleTopUpLoop shape.
type Queue struct {
	pool       *pgxpool.Pool
	store      *Store
	controller Controller
	audit      *audit.Writer
	notify     *notify.Notifier
	logger     *slog.Logger
}

// NewQueue creates a controller retry Queue.
func NewQueue(pool *pgxpool.Pool, controller Controller, auditWriter *audit.Writer, notifier *notify.Notifier, logger *slog.Logger) *Queue {
	return &Queue{
		pool:       pool,
		store:      NewStore(pool),
		controller: controller,
		audit:      auditWriter,
		notify:     notifier,
		logger:     logger,
	}
}

// EnqueueAuthorize implements grant.ControllerQueue. dbtx is the caller's
// transaction, so the enqueue commits atomically with the grant mutation
// that caused it (spec §5: "a committed grant implies an enqueued
// operation" — a crash between a grant commit and a separate enqueue call
// must not be possible).
func (q *Queue) EnqueueAuthorize(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string, endUTC time.Time) error {
	return NewStore(dbtx).Enqueue(ctx, opAuthorize, grantID, mac, &endUTC)
}

// EnqueueRevoke implements grant.ControllerQueue.
func (q *Queue) EnqueueRevoke(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string) error {
	return NewStore(dbtx).Enqueue(ctx, opRevoke, grantID, mac, nil)
}

// EnqueueExtend implements grant.ControllerQueue.
func (q *Queue) EnqueueExtend(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string, newEndUTC time.Time) error {
	return NewStore(dbtx).Enqueue(ctx, opExtend, grantID, mac, &newEndUTC)
}

// Run drains the queue until ctx is cancelled, processing one item at a
// time. Multiple API replicas may run Run concurrently: ClaimNextDue's
// FOR UPDATE SKIP LOCKED keeps them from double-delivering the same item.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	q.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drain(ctx)
		}
	}
}

// drain processes every currently-due item before returning, so a burst of
// enqueues doesn't wait out the full poll interval item by item.
func (q *Queue) drain(ctx context.Context) {
	defer q.reportDepth(ctx)
	for {
		processed, err := q.processOne(ctx)
		if err != nil {
			q.logger.Error("processing controller retry item", "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

// reportDepth refreshes the pending-item gauge after a drain pass, so
// operators can see a queue backing up between polls.
func (q *Queue) reportDepth(ctx context.Context) {
	n, err := q.store.CountPending(ctx)
	if err != nil {
		q.logger.Error("counting pending controller retry items", "error", err)
		return
	}
	telemetry.RetryQueueDepth.Set(float64(n))
}

func (q *Queue) processOne(ctx context.Context) (bool, error) {
	var processed bool
	err := db.WithTx(ctx, q.pool, func(tx pgx.Tx) error {
		item, err := q.store.ClaimNextDue(ctx, tx)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return err
		}
		processed = true
		return q.deliver(ctx, tx, item)
	})
	return processed, err
}

func (q *Queue) deliver(ctx context.Context, tx pgx.Tx, item *retryItem) error {
	deliverErr := q.call(ctx, item)
	if deliverErr == nil {
		telemetry.RetryQueueAttemptsTotal.WithLabelValues("success").Inc()
		if item.OpType == opAuthorize {
			// A delivered authorize moves its grant from PENDING to ACTIVE.
			if _, err := tx.Exec(ctx, `UPDATE access_grants SET status = 'ACTIVE', updated_utc = now()
				WHERE id = $1 AND status = 'PENDING'`, item.GrantID); err != nil {
				return err
			}
		}
		return q.store.MarkDelivered(ctx, tx, item.ID)
	}
	telemetry.RetryQueueAttemptsTotal.WithLabelValues("error").Inc()

	attempts := item.Attempts + 1
	if attempts >= MaxAttempts {
		if err := q.store.MarkDead(ctx, tx, item.ID, deliverErr.Error()); err != nil {
			return err
		}
		q.audit.Log(audit.Entry{
			Actor:      systemActor,
			Action:     "controller." + item.OpType,
			TargetType: "grant",
			TargetID:   item.GrantID,
			Outcome:    audit.OutcomeError,
		})
		if q.notify != nil {
			q.notify.RetryDeadLettered(ctx, item.OpType, item.GrantID, attempts)
		}
		return nil
	}

	next := time.Now().UTC().Add(backoffForAttempt(item.Attempts))
	return q.store.MarkRetry(ctx, tx, item.ID, next, deliverErr.Error())
}

func (q *Queue) call(ctx context.Context, item *retryItem) error {
	switch item.OpType {
	case opAuthorize:
		endUTC := time.Time{}
		if item.EndUTC != nil {
			endUTC = *item.EndUTC
		}
		_, err := q.controller.Authorize(ctx, item.MAC, endUTC)
		return err
	case opRevoke:
		return q.controller.Revoke(ctx, "", item.MAC)
	case opExtend:
		endUTC := time.Time{}
		if item.EndUTC != nil {
			endUTC = *item.EndUTC
		}
		return q.controller.Extend(ctx, "", item.MAC, endUTC)
	default:
		return backoff.Permanent(errUnknownOpType(item.OpType))
	}
}

type errUnknownOpType string

func (e errUnknownOpType) Error() string { return "unknown controller retry op type: " + string(e) }

// backoffForAttempt computes the jittered exponential delay before the
// (attempt+1)th retry, using the same cenkalti/backoff policy shape as the
// controller's own direct-call retry (omada.go's retryPolicy), with wider
// bounds since durable retries can afford to wait longer than a synchronous
// request.
func backoffForAttempt(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Minute

	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
