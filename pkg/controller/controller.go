// Package controller adapts the Wi-Fi controller's external-portal HTTP
// protocol (spec §4.G) and durably queues operations against it with retry
// (spec §4.H).
package controller

import (
	"context"
	"time"
)

// Controller is the adapter surface the grant service's retry queue drives
// (spec §4.G): authorize, revoke, extend, and a health check.
type Controller interface {
	// Authorize grants network access to mac until endUTC, returning the
	// controller's own grant identifier.
	Authorize(ctx context.Context, mac string, endUTC time.Time) (controllerGrantID string, err error)
	// Revoke removes network access for mac (or the given controller grant
	// id, if known). Revoking an absent grant is a no-op success.
	Revoke(ctx context.Context, controllerGrantID, mac string) error
	// Extend updates an existing grant's expiration. Extending an absent
	// grant is a no-op success.
	Extend(ctx context.Context, controllerGrantID, mac string, newEndUTC time.Time) error
	// Health reports whether the controller session is currently usable.
	Health(ctx context.Context) error
}
