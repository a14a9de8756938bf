package guest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/pkg/grant"
)

// MACReconcileWindow is how long a session-token-fallback grant may go
// without a reconciled MAC before it is revoked (spec §4.I.5).
const MACReconcileWindow = 30 * time.Second

type pendingEntry struct {
	grantID uuid.UUID
}

// SessionTracker holds the session-token fallback used when a request
// carries no MAC header (spec §4.I.5): the grant is created against the
// session token, and revoked if not reconciled to a real MAC within
// MACReconcileWindow.
type SessionTracker struct {
	mu      sync.Mutex
	pending map[string]pendingEntry
	// byGrant indexes pending by grant id rather than session token, since
	// the only thing the guest browser can present back (the grant_id
	// cookie set on successful Dispatch) is the grant id, never the raw
	// session token.
	byGrant map[uuid.UUID]string
	grants  *grant.Service
	logger  *slog.Logger
}

// NewSessionTracker creates a SessionTracker.
func NewSessionTracker(grants *grant.Service, logger *slog.Logger) *SessionTracker {
	return &SessionTracker{
		pending: make(map[string]pendingEntry),
		byGrant: make(map[uuid.UUID]string),
		grants:  grants,
		logger:  logger,
	}
}

// Track registers grantID against sessionToken and schedules its revocation
// if Reconcile is not called within MACReconcileWindow.
func (t *SessionTracker) Track(sessionToken string, grantID uuid.UUID) {
	t.mu.Lock()
	t.pending[sessionToken] = pendingEntry{grantID: grantID}
	t.byGrant[grantID] = sessionToken
	t.mu.Unlock()

	time.AfterFunc(MACReconcileWindow, func() { t.expire(sessionToken) })
}

// Reconcile resolves the real MAC for a session-token-fallback grant. It is
// a one-shot: a second call for the same token returns NOT_FOUND.
func (t *SessionTracker) Reconcile(ctx context.Context, sessionToken, mac string) (*grant.Grant, error) {
	entry, ok := t.take(sessionToken)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no pending MAC reconciliation for this session")
	}
	return t.grants.ReconcileMAC(ctx, entry.grantID, mac)
}

// ReconcileByGrant is Reconcile keyed by grant id instead of session token,
// for the splash-page callback the guest browser can actually make (spec
// §4.I.5/§4.I.9: the browser only ever learns the grant_id cookie, not the
// internal session token).
func (t *SessionTracker) ReconcileByGrant(ctx context.Context, grantID uuid.UUID, mac string) (*grant.Grant, error) {
	t.mu.Lock()
	sessionToken, ok := t.byGrant[grantID]
	t.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no pending MAC reconciliation for this grant")
	}
	return t.Reconcile(ctx, sessionToken, mac)
}

func (t *SessionTracker) take(sessionToken string) (pendingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[sessionToken]
	if ok {
		delete(t.pending, sessionToken)
		delete(t.byGrant, entry.grantID)
	}
	return entry, ok
}

func (t *SessionTracker) expire(sessionToken string) {
	entry, ok := t.take(sessionToken)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := t.grants.Revoke(ctx, entry.grantID); err != nil {
		t.logger.Error("revoking unreconciled session-token grant", "error", err, "grant_id", entry.grantID)
	}
}
