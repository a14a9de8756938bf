package httpserver

import (
	"net/http"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
)

// RespondKindError writes the fixed error envelope for err, mapping its
// apperr.Kind to the HTTP status code per spec §7. Errors that are not an
// *apperr.Error are treated as internal and their detail is never echoed to
// the client.
func RespondKindError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		RespondErrorCtx(w, r, http.StatusInternalServerError, string(apperr.KindInternal), "internal error")
		return
	}

	status := httpStatusForKind(e.Kind)
	RespondErrorCtx(w, r, status, string(e.Kind), e.Message)
}

func httpStatusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindDuplicateRedemption:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindControllerUnavailable:
		return http.StatusBadGateway
	case apperr.KindIntegrationUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindControllerTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindOutsideWindow:
		return http.StatusGone
	case apperr.KindExpired, apperr.KindRevoked:
		return http.StatusForbidden
	case apperr.KindRetryExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
