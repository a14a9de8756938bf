// Package grant implements the access-grant state machine of spec §4.D:
// PENDING → ACTIVE → EXPIRED/REVOKED, with idempotent extend/revoke and
// minute-rounded lifetimes.
package grant

import (
	"time"

	"github.com/google/uuid"
)

// Status values for an AccessGrant.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
	StatusRevoked = "REVOKED"
)

// Grant is the AccessGrant entity of spec §3.
type Grant struct {
	ID                uuid.UUID
	VoucherCode       *string
	BookingRef        *string
	IntegrationID     *string
	UserInputCode     *string
	MAC               string
	SessionToken      *string
	StartUTC          time.Time
	EndUTC            time.Time
	ControllerGrantID *string
	Status            string
	CreatedUTC        time.Time
	UpdatedUTC        time.Time
}

// FloorMinute rounds t down to the enclosing minute.
func FloorMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// CeilMinute rounds t up to the next minute, or returns t unchanged when it
// already falls exactly on a minute boundary.
func CeilMinute(t time.Time) time.Time {
	floored := t.Truncate(time.Minute)
	if floored.Equal(t) {
		return floored
	}
	return floored.Add(time.Minute)
}

// Identifier returns the (mac, voucher-code-or-booking-ref) pair used for
// the spec's duplicate-grant and uniqueness invariants. Exactly one of
// VoucherCode/BookingRef is expected to be set.
func (g *Grant) Identifier() string {
	switch {
	case g.VoucherCode != nil:
		return *g.VoucherCode
	case g.BookingRef != nil:
		return *g.BookingRef
	default:
		return ""
	}
}

// IsTerminal reports whether the grant's status can never change again
// (spec §8: "For all REVOKED grants g: no subsequent transition changes
// g.status" — EXPIRED is not terminal since extend reactivates it).
func (g *Grant) IsTerminal() bool {
	return g.Status == StatusRevoked
}
