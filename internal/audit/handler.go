package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Handler provides the read-only HTTP surface over the audit log (spec §4.J:
// "no API exposes update or delete").
type Handler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted, gated to the
// "audit.read" action.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireAction("audit.read")).Get("/", h.handleList)
	return r
}

// listEntry is the JSON projection of an audit_log row.
type listEntry struct {
	ID            uuid.UUID       `json:"id"`
	TimestampUTC  time.Time       `json:"timestamp_utc"`
	Actor         string          `json:"actor"`
	RoleSnapshot  string          `json:"role_snapshot"`
	Action        string          `json:"action"`
	TargetType    string          `json:"target_type"`
	TargetID      uuid.UUID       `json:"target_id"`
	Outcome       string          `json:"outcome"`
	CorrelationID string          `json:"correlation_id"`
	Meta          json.RawMessage `json:"meta"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.pool.Query(ctx,
		`SELECT id, timestamp_utc, actor, role_snapshot, action, target_type, target_id, outcome, correlation_id, meta
		 FROM audit_log ORDER BY timestamp_utc DESC LIMIT $1 OFFSET $2`,
		params.PageSize, params.Offset,
	)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondKindError(w, r, err)
		return
	}
	defer rows.Close()

	entries := make([]listEntry, 0, params.PageSize)
	for rows.Next() {
		var e listEntry
		if err := rows.Scan(&e.ID, &e.TimestampUTC, &e.Actor, &e.RoleSnapshot, &e.Action, &e.TargetType, &e.TargetID, &e.Outcome, &e.CorrelationID, &e.Meta); err != nil {
			h.logger.Error("scanning audit log row", "error", err)
			httpserver.RespondKindError(w, r, err)
			return
		}
		entries = append(entries, e)
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
