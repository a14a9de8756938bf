// Package auth resolves the authenticated caller for admin HTTP requests and
// enforces the static action/role matrix of spec §4.J. Admin login mechanics
// (password verification, cookie issuance) are out of scope per spec.md; this
// package only validates an already-issued session JWT or API key and gates
// access to the resulting Identity.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Roles recognized by the RBAC matrix (spec §4.J).
const (
	RoleViewer   = "viewer"
	RoleAuditor  = "auditor"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ValidRoles lists all known roles.
var ValidRoles = []string{RoleViewer, RoleAuditor, RoleOperator, RoleAdmin}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Authentication methods.
const (
	MethodSession = "session"
	MethodAPIKey  = "apikey"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject  string     // session subject or "apikey:<prefix>"
	Email    string     // empty for API keys
	Role     string     // one of the Role* constants, snapshotted at auth time
	UserID   *uuid.UUID // non-nil for session-authenticated callers
	APIKeyID *uuid.UUID // non-nil for API-key-authenticated callers
	Method   string     // one of the Method* constants
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key. Only the
// digest is persisted; the raw key is never stored.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
