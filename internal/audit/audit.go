// Package audit implements the append-only audit log of spec §4.J: every
// state-changing operation writes exactly one entry carrying the actor
// identity, its role snapshot at call time, the action string, the target,
// the outcome, and the request's correlation id.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Outcome of an audited operation.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Entry represents a single audit log entry to be written (spec §3 AuditEntry).
type Entry struct {
	Actor         string
	RoleSnapshot  string
	Action        string
	TargetType    string
	TargetID      uuid.UUID
	Outcome       string
	CorrelationID string
	Meta          json.RawMessage
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine so that audit
// persistence never adds latency to the caller's request path.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine flushes the entries still
// buffered and exits when ctx is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged
// (an audit write is not allowed to back-pressure the request path, but a
// dropped entry is itself an operational signal worth surfacing).
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "target_type", entry.TargetType)
	}
}

// LogOutcome is a convenience method that builds an Entry from the
// request's authenticated identity and correlation id.
func (w *Writer) LogOutcome(r *http.Request, action, targetType string, targetID uuid.UUID, outcome string, meta json.RawMessage) {
	entry := Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Outcome:    outcome,
		Meta:       meta,
	}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.Actor = id.Subject
		entry.RoleSnapshot = id.Role
	}

	entry.CorrelationID = httpserver.CorrelationIDFromContext(r.Context())

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the audit_log table. The table is
// append-only: no code path in this package issues UPDATE or DELETE.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var batch pgx.Batch
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO audit_log (id, timestamp_utc, actor, role_snapshot, action, target_type, target_id, outcome, correlation_id, meta)
			 VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), e.Actor, e.RoleSnapshot, e.Action, e.TargetType, e.TargetID, e.Outcome, e.CorrelationID, e.Meta,
		)
	}

	br := w.pool.SendBatch(ctx, &batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			w.logger.Error("writing audit log entry", "error", err)
		}
	}
}
