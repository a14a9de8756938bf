package auth

import (
	"encoding/json"
	"net/http"
)

// errorResponse mirrors the fixed {error, code, correlation_id} envelope of
// spec §6/§7. Defined locally, rather than imported from internal/httpserver,
// to avoid a package cycle (internal/httpserver imports internal/auth to
// mount the authenticated router).
type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// respondErr writes the fixed error envelope. The correlation id is read
// back off the response header set by the RequestID middleware, which always
// runs upstream of auth middleware in the router chain.
func respondErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	corrID := w.Header().Get("X-Correlation-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:         message,
		Code:          code,
		CorrelationID: corrID,
	})
}
