package voucher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
)

func withOperator(r *http.Request) *http.Request {
	id := &auth.Identity{Subject: "test-operator", Role: auth.RoleOperator, Method: auth.MethodSession}
	return r.WithContext(auth.NewContext(r.Context(), id))
}

func TestHandleCreate_ValidationFailure(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/vouchers", h.Routes())

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing fields", body: `{}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "length too short", body: `{"length":2,"duration_minutes":60}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "length too long", body: `{"length":30,"duration_minutes":60}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid JSON", body: `{bad}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := withOperator(httptest.NewRequest(http.MethodPost, "/vouchers/", strings.NewReader(tt.body)))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRoutes_RejectUnauthenticated(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/vouchers", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/vouchers/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRoutes_RejectViewerOnCreate(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/vouchers", h.Routes())

	id := &auth.Identity{Subject: "test-viewer", Role: auth.RoleViewer, Method: auth.MethodSession}
	r := httptest.NewRequest(http.MethodPost, "/vouchers/", strings.NewReader(`{"length":10,"duration_minutes":60}`))
	r = r.WithContext(auth.NewContext(r.Context(), id))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
