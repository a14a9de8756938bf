// Package reservation caches reservation-source events and polls for
// changes on a fixed cadence, projecting them into the booking-code
// identifiers the guest pipeline matches against (spec §4.E).
package reservation

import (
	"encoding/json"
	"time"
)

// Auth-attribute selection order (spec §3/§4.E).
const (
	AttrSlotCode = "slot_code"
	AttrSlotName = "slot_name"
	AttrLastFour = "last_four"
)

// DefaultAuthAttribute is used when an IntegrationConfig does not specify one.
const DefaultAuthAttribute = AttrSlotCode

// Stale-count thresholds (spec §4.E): warn at 3 missed polls, refuse
// booking-derived grants at 6.
const (
	StaleWarnThreshold   = 3
	StaleRefuseThreshold = 6
)

// PollInterval is the default synchronized batch-poll cadence.
const PollInterval = 60 * time.Second

// MaxBackoff caps the per-integration error backoff (spec §4.E: min(60*2^n, 300)).
const MaxBackoff = 300 * time.Second

// RetentionWindow is how long past end_utc a RentalEvent is kept (spec §3/§4.E).
const RetentionWindow = 7 * 24 * time.Hour

// RentalEvent is a cached reservation-source event (spec §3).
type RentalEvent struct {
	IntegrationID string
	EventIndex    int
	SlotName      *string
	SlotCode      *string
	LastFour      *string
	StartUTC      time.Time
	EndUTC        time.Time
	RawAttributes json.RawMessage
	CreatedUTC    time.Time
	UpdatedUTC    time.Time
}

// Identifier returns the authorization identifier selected per attr, falling
// back through slot_code -> slot_name when attr is unset or its value is
// absent (spec §4.E projection rule). Returns "", false when none resolve.
func (e *RentalEvent) Identifier(attr string) (string, bool) {
	for _, candidate := range attributeFallbackOrder(attr) {
		switch candidate {
		case AttrSlotCode:
			if e.SlotCode != nil && *e.SlotCode != "" {
				return *e.SlotCode, true
			}
		case AttrSlotName:
			if e.SlotName != nil && *e.SlotName != "" {
				return *e.SlotName, true
			}
		case AttrLastFour:
			if e.LastFour != nil && *e.LastFour != "" {
				return *e.LastFour, true
			}
		}
	}
	return "", false
}

// attributeFallbackOrder returns attr followed by the remaining fallback
// chain slot_code -> slot_name (spec §4.E: "configured auth_attribute; else
// slot_code; else slot_name; else skip event").
func attributeFallbackOrder(attr string) []string {
	order := []string{attr}
	for _, fallback := range []string{AttrSlotCode, AttrSlotName} {
		if fallback != attr {
			order = append(order, fallback)
		}
	}
	return order
}

// IntegrationConfig is the IntegrationConfig entity of spec §3.
type IntegrationConfig struct {
	IntegrationID        string
	Enabled              bool
	AuthAttribute        string
	CheckoutGraceMinutes int
	LastSyncUTC          *time.Time
	StaleCount           int
	ConsecutiveErrors    int
}

// IsStale reports whether the integration has missed enough polls to be
// flagged (warn threshold).
func (c *IntegrationConfig) IsStale() bool {
	return c.StaleCount >= StaleWarnThreshold
}

// BookingRefused reports whether booking-derived grants must be refused for
// this integration (spec §4.E: 3 further misses past the warning threshold).
func (c *IntegrationConfig) BookingRefused() bool {
	return c.StaleCount >= StaleRefuseThreshold
}

// NextBackoff returns the delay before the next poll attempt given the
// current consecutive-error count (spec §4.E: min(60*2^n, 300) seconds).
func NextBackoff(consecutiveErrors int) time.Duration {
	if consecutiveErrors <= 0 {
		return PollInterval
	}
	d := PollInterval
	for i := 0; i < consecutiveErrors; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}
