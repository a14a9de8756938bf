package grant

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
)

func withAdmin(r *http.Request) *http.Request {
	id := &auth.Identity{Subject: "test-admin", Role: auth.RoleAdmin, Method: auth.MethodSession}
	return r.WithContext(auth.NewContext(r.Context(), id))
}

func TestHandleExtend_InvalidID(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/grants", h.Routes())

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/grants/not-a-uuid/extend", strings.NewReader(`{"minutes":30}`)))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandleExtend_ValidationFailure(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/grants", h.Routes())

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing minutes", body: `{}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "zero minutes", body: `{"minutes":0}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "negative minutes", body: `{"minutes":-5}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid JSON", body: `{bad}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := withAdmin(httptest.NewRequest(http.MethodPost, "/grants/"+validGrantID+"/extend", strings.NewReader(tt.body)))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleRevoke_InvalidID(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/grants", h.Routes())

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/grants/not-a-uuid/revoke", nil))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRoutes_RejectUnauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/grants", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/grants/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

const validGrantID = "b6f8a2b0-7d39-4e36-9f2c-4f3c8d9a1234"
