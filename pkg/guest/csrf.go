package guest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// CSRFCookieName is the double-submit cookie carrying the guest form's CSRF
// token (spec §4.I.3).
const CSRFCookieName = "csrf_token"

// csrfTokenBytes is the random token size before hex encoding.
const csrfTokenBytes = 32

// NewCSRFToken generates a fresh random CSRF token.
func NewCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SetCSRFCookie issues the CSRF cookie. Cookie attributes are relaxed for
// captive-portal HTTP contexts but HttpOnly and SameSite=Lax remain
// mandatory; Secure is set only when the portal itself is served over TLS
// (spec §4.I.3, §9).
func SetCSRFCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateCSRF reports whether the submitted token matches the cookie,
// using a constant-time comparison.
func ValidateCSRF(r *http.Request, submitted string) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) == 1
}
