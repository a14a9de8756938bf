package voucher

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

// Handler exposes the admin voucher contract of spec §6: POST
// /admin/vouchers, GET /admin/vouchers.
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler creates a voucher Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes returns a chi.Router with voucher admin routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireAction("vouchers.read")).Get("/", h.handleList)
	r.With(auth.RequireAction("vouchers.create")).Post("/", h.handleCreate)
	return r
}

type createVoucherRequest struct {
	Length          int  `json:"length" validate:"required,min=4,max=24"`
	DurationMinutes int  `json:"duration_minutes" validate:"required,min=1"`
	UpKbps          *int `json:"up_kbps,omitempty" validate:"omitempty,min=1"`
	DownKbps        *int `json:"down_kbps,omitempty" validate:"omitempty,min=1"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createVoucherRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	v, err := h.svc.Create(r.Context(), CreateParams{
		Length:          req.Length,
		DurationMinutes: req.DurationMinutes,
		UpKbps:          req.UpKbps,
		DownKbps:        req.DownKbps,
	})
	if err != nil {
		h.audit.LogOutcome(r, "vouchers.create", "voucher", uuid.Nil, audit.OutcomeError, nil)
		httpserver.RespondKindError(w, r, err)
		return
	}

	meta, _ := json.Marshal(map[string]string{"code": v.Code})
	h.audit.LogOutcome(r, "vouchers.create", "voucher", uuid.Nil, audit.OutcomeSuccess, meta)
	httpserver.Respond(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	vouchers, err := h.svc.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondKindError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, vouchers)
}
