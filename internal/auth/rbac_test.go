package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		role   string
		action string
		want   bool
	}{
		{RoleAdmin, "portalconfig.write", true},
		{RoleOperator, "portalconfig.write", false},
		{RoleOperator, "grants.extend", true},
		{RoleViewer, "grants.extend", false},
		{RoleAuditor, "audit.read", true},
		{RoleViewer, "audit.read", false},
		{RoleAdmin, "nonexistent.action", false},
		{"bogus-role", "grants.read", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action, func(t *testing.T) {
			if got := IsAllowed(tt.role, tt.action); got != tt.want {
				t.Errorf("IsAllowed(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestIsAllowedDeniesUnknownActionsForEveryRole(t *testing.T) {
	for _, role := range ValidRoles {
		if IsAllowed(role, "made.up.action") {
			t.Errorf("IsAllowed(%q, unknown action) = true, want false", role)
		}
	}
}

func TestRequireAuthRejectsMissingIdentity(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without an identity")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireActionDeniesInsufficientRole(t *testing.T) {
	h := RequireAction("portalconfig.write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for a denied action")
	}))

	id := &Identity{Role: RoleViewer}
	r := httptest.NewRequest(http.MethodPut, "/admin/portal-config", nil)
	r = r.WithContext(NewContext(r.Context(), id))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireActionAllowsGrantedRole(t *testing.T) {
	called := false
	h := RequireAction("portalconfig.write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	id := &Identity{Role: RoleAdmin}
	r := httptest.NewRequest(http.MethodPut, "/admin/portal-config", nil)
	r = r.WithContext(NewContext(r.Context(), id))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if !called {
		t.Fatal("handler was not called for a granted action")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
