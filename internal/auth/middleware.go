package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// session JWT or API key and stores the resulting Identity in the request
// context. Authentication precedence:
//
//  1. Authorization: Bearer <jwt>  →  session JWT (HMAC)
//  2. X-API-Key: <raw-key>         →  API key hash lookup
//
// If neither succeeds, the request is rejected with 401. sessionMgr may be
// nil when no session secret is configured (API-key-only deployments).
func Middleware(sessionMgr *SessionManager, pool db.DBTX) func(http.Handler) http.Handler {
	apikeyAuth := &APIKeyAuthenticator{DB: pool}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
				rawToken := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authHeader, "Bearer "), "bearer "))

				if sessionMgr != nil {
					claims, err := sessionMgr.ValidateToken(rawToken)
					if err != nil {
						respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "invalid session token")
						return
					}
					userID, _ := uuid.Parse(claims.UserID)
					identity = &Identity{
						Subject: claims.Subject,
						Email:   claims.Email,
						Role:    claims.Role,
						UserID:  &userID,
						Method:  MethodSession,
					}
				} else {
					respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "session authentication not configured")
					return
				}
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "invalid API key")
						return
					}
					identity = &Identity{
						Subject:  "apikey:" + result.KeyPrefix,
						Role:     result.Role,
						APIKeyID: &result.APIKeyID,
						Method:   MethodAPIKey,
					}
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
