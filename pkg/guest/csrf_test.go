package guest

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewCSRFTokenIsUniqueAndHex(t *testing.T) {
	a, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken() error: %v", err)
	}
	b, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken() error: %v", err)
	}
	if a == b {
		t.Error("expected two distinct tokens")
	}
	if len(a) != csrfTokenBytes*2 {
		t.Errorf("token length = %d, want %d", len(a), csrfTokenBytes*2)
	}
}

func TestValidateCSRFMatchesCookie(t *testing.T) {
	token := "abc123"
	r := httptest.NewRequest(http.MethodPost, "/guest/authorize", nil)
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})

	if !ValidateCSRF(r, token) {
		t.Error("expected matching token to validate")
	}
	if ValidateCSRF(r, "wrong") {
		t.Error("expected mismatched token to fail validation")
	}
}

func TestValidateCSRFMissingCookieOrSubmission(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/guest/authorize", nil)
	if ValidateCSRF(r, "anything") {
		t.Error("expected no-cookie request to fail validation")
	}

	r2 := httptest.NewRequest(http.MethodPost, "/guest/authorize", nil)
	r2.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc123"})
	if ValidateCSRF(r2, "") {
		t.Error("expected empty submitted token to fail validation")
	}
}

func TestSetCSRFCookieRespectsSecureFlag(t *testing.T) {
	w := httptest.NewRecorder()
	SetCSRFCookie(w, "abc123", true)
	resp := w.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if !c.Secure || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
}
