package grant

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Handler exposes the admin HTTP contract of spec §6 for grants:
// GET /admin/grants, POST /admin/grants/{id}/extend, POST /admin/grants/{id}/revoke.
type Handler struct {
	svc    *Service
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a grant Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with grant admin routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireAction("grants.read")).Get("/", h.handleList)
	r.With(auth.RequireAction("grants.extend")).Post("/{id}/extend", h.handleExtend)
	r.With(auth.RequireAction("grants.revoke")).Post("/{id}/revoke", h.handleRevoke)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	status := r.URL.Query().Get("status")
	grants, err := h.svc.List(r.Context(), status, params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondKindError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, grants)
}

type extendRequest struct {
	Minutes int `json:"minutes" validate:"required,min=1,max=10080"`
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, string(apperr.KindInvalidInput), "invalid grant id")
		return
	}

	var req extendRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	g, err := h.svc.Extend(r.Context(), id, req.Minutes, time.Now().UTC())
	if err != nil {
		h.audit.LogOutcome(r, "grants.extend", "grant", id, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, err)
		return
	}

	h.audit.LogOutcome(r, "grants.extend", "grant", id, audit.OutcomeSuccess, nil)
	httpserver.Respond(w, http.StatusOK, g)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, string(apperr.KindInvalidInput), "invalid grant id")
		return
	}

	g, err := h.svc.Revoke(r.Context(), id)
	if err != nil {
		h.audit.LogOutcome(r, "grants.revoke", "grant", id, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, err)
		return
	}

	h.audit.LogOutcome(r, "grants.revoke", "grant", id, audit.OutcomeSuccess, nil)
	httpserver.Respond(w, http.StatusOK, g)
}
