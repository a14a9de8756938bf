package auth

import (
	"net/http"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
)

// actionMatrix maps a dot-notation action string to the set of roles allowed
// to perform it (spec §4.J). An action absent from the matrix, or present
// with no role for the caller, denies by construction — there is no
// fallthrough "allow" path.
var actionMatrix = map[string]map[string]struct{}{
	"portalconfig.read":    roleSet(RoleViewer, RoleAuditor, RoleOperator, RoleAdmin),
	"portalconfig.write":   roleSet(RoleAdmin),
	"integrations.read":    roleSet(RoleViewer, RoleAuditor, RoleOperator, RoleAdmin),
	"integrations.write":   roleSet(RoleOperator, RoleAdmin),
	"integrations.delete":  roleSet(RoleAdmin),
	"grants.read":          roleSet(RoleViewer, RoleAuditor, RoleOperator, RoleAdmin),
	"grants.extend":        roleSet(RoleOperator, RoleAdmin),
	"grants.revoke":        roleSet(RoleOperator, RoleAdmin),
	"vouchers.read":        roleSet(RoleViewer, RoleAuditor, RoleOperator, RoleAdmin),
	"vouchers.create":      roleSet(RoleOperator, RoleAdmin),
	"audit.read":           roleSet(RoleAuditor, RoleAdmin),
}

func roleSet(roles ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// IsAllowed reports whether role may perform action, per the static matrix.
// Unknown actions and roles with no grant for the action both deny.
func IsAllowed(role, action string) bool {
	allowed, ok := actionMatrix[action]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAction returns middleware that denies the request unless the
// caller's role is granted the given action in the static matrix. Denial is
// HTTP 403 with the fixed RBAC_FORBIDDEN code. The wrapped handler does not
// run for a denied request, and no audit entry is written for the denial.
func RequireAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "authentication required")
				return
			}
			if !IsAllowed(id.Role, action) {
				respondErr(w, http.StatusForbidden, string(apperr.KindForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
