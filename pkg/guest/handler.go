package guest

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
	"github.com/tykeal/homeassistant-captive-portal/pkg/portalconfig"
)

// GrantCookieName carries the created grant's id back to the guest browser
// on success (spec §4.I.9).
const GrantCookieName = "grant_id"

// detectionPaths are the captive-portal OS detection probes that must
// redirect to the authorization form, preserving the original URL as
// `continue` (spec §4.I, final paragraph).
var detectionPaths = []string{
	"/generate_204",
	"/gen_204",
	"/connecttest.txt",
	"/ncsi.txt",
	"/hotspot-detect.html",
	"/library/test/success.html",
	"/success.txt",
}

// Handler composes the guest authorization pipeline into HTTP routes.
type Handler struct {
	dispatcher     *Dispatcher
	portal         *portalconfig.Service
	limiter        *RateLimiter
	sessions       *SessionTracker
	trustedProxies []*net.IPNet
	redirectAllow  []string
	tlsEnabled     bool
	logger         *slog.Logger
}

// NewHandler creates a guest Handler.
func NewHandler(dispatcher *Dispatcher, portal *portalconfig.Service, limiter *RateLimiter, sessions *SessionTracker, trustedProxies []*net.IPNet, redirectAllow []string, tlsEnabled bool, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher:     dispatcher,
		portal:         portal,
		limiter:        limiter,
		sessions:       sessions,
		trustedProxies: trustedProxies,
		redirectAllow:  redirectAllow,
		tlsEnabled:     tlsEnabled,
		logger:         logger,
	}
}

// Routes mounts the guest-facing, unauthenticated routes: the
// authorization form, its submission, and the captive-portal detection
// probes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/authorize", h.handleForm)
	r.Post("/authorize", h.handleSubmit)
	r.Post("/reconcile-mac", h.handleReconcileMAC)
	for _, p := range detectionPaths {
		r.Get(p, h.handleDetection)
	}
	return r
}

func (h *Handler) handleDetection(w http.ResponseWriter, r *http.Request) {
	dest := "/guest/authorize?continue=" + r.URL.RequestURI()
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	token, err := NewCSRFToken()
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to prepare authorization form")
		return
	}
	SetCSRFCookie(w, token, h.tlsEnabled)

	httpserver.Respond(w, http.StatusOK, map[string]string{
		"csrf_token": token,
		"continue":   r.URL.Query().Get("continue"),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r, h.trustedProxies)
	now := time.Now().UTC()

	cfg, err := h.portal.Get(r.Context())
	if err != nil {
		httpserver.RespondKindError(w, r, err)
		return
	}

	if allowed, retryAfter := h.limiter.Allow(ip, cfg.RateLimitAttempts, cfg.RateLimitWindow(), now); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		httpserver.RespondErrorCtx(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
		return
	}

	if err := r.ParseForm(); err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed form submission")
		return
	}

	if !ValidateCSRF(r, r.PostForm.Get("csrf_token")) {
		httpserver.RespondErrorCtx(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing CSRF token")
		return
	}

	code := r.PostForm.Get("code")

	mac, hasMAC := CaptureMAC(r.Header.Get)
	var sessionToken string
	if !hasMAC {
		token, err := NewCSRFToken()
		if err != nil {
			httpserver.RespondErrorCtx(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to start session")
			return
		}
		sessionToken = token
		mac = "SESSION:" + sessionToken
	}

	g, err := h.dispatcher.Dispatch(r.Context(), code, mac, now)
	if err != nil {
		h.respondDispatchError(w, r, err)
		return
	}

	if !hasMAC {
		h.sessions.Track(sessionToken, g.ID)
	}

	h.limiter.Reset(ip)

	dest := ValidateRedirect(r.URL.Query().Get("continue"), h.redirectAllow, cfg.SuccessRedirectURL)
	h.setSecurityHeaders(w)
	http.SetCookie(w, &http.Cookie{
		Name:     GrantCookieName,
		Value:    g.ID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.tlsEnabled,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// handleReconcileMAC resolves the real MAC for a session-token-fallback
// grant (spec §4.I.5). The splash page the browser lands on after a
// MAC-less authorization polls this endpoint once the device has network
// access and its requests start carrying the MAC header again; the
// grant_id cookie set on success identifies which pending reconciliation
// this request completes.
func (h *Handler) handleReconcileMAC(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(GrantCookieName)
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", "missing grant_id cookie")
		return
	}
	grantID, err := uuid.Parse(cookie.Value)
	if err != nil {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed grant_id cookie")
		return
	}

	mac, ok := CaptureMAC(r.Header.Get)
	if !ok {
		httpserver.RespondErrorCtx(w, r, http.StatusBadRequest, "INVALID_INPUT", "request carries no MAC header to reconcile")
		return
	}

	g, err := h.sessions.ReconcileByGrant(r.Context(), grantID, mac)
	if err != nil {
		httpserver.RespondKindError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"grant_id": g.ID.String(), "status": g.Status})
}

func (h *Handler) respondDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindControllerUnavailable {
		httpserver.RespondKindError(w, r, apperr.Wrap(apperr.KindIntegrationUnavailable, "a required upstream is unavailable", err))
		return
	}
	httpserver.RespondKindError(w, r, err)
}

func (h *Handler) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}
