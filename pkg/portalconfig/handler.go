package portalconfig

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Handler exposes the portal config singleton over HTTP.
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler creates a portal config Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts GET/PUT on the portal config singleton, gated by RBAC.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireAction("portalconfig.read")).Get("/", h.handleGet)
	r.With(auth.RequireAction("portalconfig.write")).Put("/", h.handleUpdate)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Get(r.Context())
	if err != nil {
		httpserver.RespondKindError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

type updateRequest struct {
	RateLimitAttempts      int    `json:"rate_limit_attempts" validate:"required,min=1,max=100"`
	RateLimitWindowSeconds int    `json:"rate_limit_window_seconds" validate:"required,min=10,max=3600"`
	SuccessRedirectURL     string `json:"success_redirect_url" validate:"required"`
	VoucherLengthDefault   int    `json:"voucher_length_default" validate:"required,min=4,max=24"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.svc.Update(r.Context(), UpdateParams{
		RateLimitAttempts:      req.RateLimitAttempts,
		RateLimitWindowSeconds: req.RateLimitWindowSeconds,
		SuccessRedirectURL:     req.SuccessRedirectURL,
		VoucherLengthDefault:   req.VoucherLengthDefault,
	})
	if err != nil {
		h.audit.LogOutcome(r, "portalconfig.write", "portal_config", uuid.Nil, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, err)
		return
	}

	meta, _ := json.Marshal(cfg)
	h.audit.LogOutcome(r, "portalconfig.write", "portal_config", uuid.Nil, audit.OutcomeSuccess, meta)
	httpserver.Respond(w, http.StatusOK, cfg)
}
