package reservation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Handler exposes the admin integration-config contract of spec §6:
// GET/POST/PUT/DELETE /admin/integrations.
type Handler struct {
	store *Store
	audit *audit.Writer
}

// NewHandler creates a reservation-integration admin Handler.
func NewHandler(store *Store, auditWriter *audit.Writer) *Handler {
	return &Handler{store: store, audit: auditWriter}
}

// Routes returns a chi.Router with integration-config admin routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireAction("integrations.read")).Get("/", h.handleList)
	r.With(auth.RequireAction("integrations.write")).Post("/", h.handleUpsert)
	r.With(auth.RequireAction("integrations.write")).Put("/{id}", h.handleUpsert)
	r.With(auth.RequireAction("integrations.delete")).Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		httpserver.RespondKindError(w, r, apperr.Wrap(apperr.KindInternal, "listing integrations", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, integrations)
}

type upsertIntegrationRequest struct {
	IntegrationID        string `json:"integration_id" validate:"required"`
	Enabled              bool   `json:"enabled"`
	AuthAttribute        string `json:"auth_attribute" validate:"required"`
	CheckoutGraceMinutes int    `json:"checkout_grace_minutes" validate:"min=0"`
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertIntegrationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if pathID := chi.URLParam(r, "id"); pathID != "" {
		req.IntegrationID = pathID
	}

	existing, err := h.store.Integration(r.Context(), req.IntegrationID)
	cfg := &IntegrationConfig{
		IntegrationID:        req.IntegrationID,
		Enabled:              req.Enabled,
		AuthAttribute:        req.AuthAttribute,
		CheckoutGraceMinutes: req.CheckoutGraceMinutes,
	}
	if err == nil && existing != nil {
		cfg.LastSyncUTC = existing.LastSyncUTC
		cfg.StaleCount = existing.StaleCount
		cfg.ConsecutiveErrors = existing.ConsecutiveErrors
	}

	if err := h.store.UpsertIntegration(r.Context(), cfg); err != nil {
		h.audit.LogOutcome(r, "integrations.write", "integration", uuid.Nil, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, apperr.Wrap(apperr.KindInternal, "saving integration config", err))
		return
	}

	h.audit.LogOutcome(r, "integrations.write", "integration", uuid.Nil, audit.OutcomeSuccess, nil)
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.store.DeleteIntegration(r.Context(), id)
	if err != nil {
		h.audit.LogOutcome(r, "integrations.delete", "integration", uuid.Nil, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, apperr.Wrap(apperr.KindInternal, "deleting integration config", err))
		return
	}
	if !deleted {
		httpserver.RespondErrorCtx(w, r, http.StatusNotFound, string(apperr.KindNotFound), "integration not found")
		return
	}

	h.audit.LogOutcome(r, "integrations.delete", "integration", uuid.Nil, audit.OutcomeSuccess, nil)
	w.WriteHeader(http.StatusNoContent)
}
