// Package booking implements the reservation-derived booking-code
// validator of spec §4.F: case-insensitive event matching, the early-window
// and checkout-grace admission check, and per-(mac, event) duplicate
// detection.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
	"github.com/tykeal/homeassistant-captive-portal/pkg/grant"
	"github.com/tykeal/homeassistant-captive-portal/pkg/reservation"
)

// EarlyWindow is the fixed 60-minute early check-in window (spec §4.F).
const EarlyWindow = 60 * time.Minute

// Validator implements validate(user_input, integration, now) -> RentalEvent.
type Validator struct {
	events *reservation.Store
	grants *grant.Store
}

// NewValidator creates a booking Validator.
func NewValidator(events *reservation.Store, grants *grant.Store) *Validator {
	return &Validator{events: events, grants: grants}
}

// EventRef identifies a matched rental event for downstream grant creation
// and duplicate scoping (spec §4.F's explicit "(mac, event)" scope, never
// the booking identifier alone).
type EventRef string

// Ref returns the (integration_id, event_index)-scoped key used for
// duplicate-grant detection and as the AccessGrant's booking_ref.
func Ref(integrationID string, eventIndex int) EventRef {
	return EventRef(fmt.Sprintf("%s#%d", integrationID, eventIndex))
}

// Validate matches userInput against the integration's cached events,
// applies the admission window, and checks for an existing non-revoked
// grant for the same (mac, event).
func (v *Validator) Validate(ctx context.Context, userInput string, cfg *reservation.IntegrationConfig, mac string, now time.Time) (event *reservation.RentalEvent, ref EventRef, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		telemetry.BookingValidationsTotal.WithLabelValues(outcome).Inc()
	}()

	input := strings.TrimSpace(userInput)
	if input == "" {
		return nil, "", apperr.New(apperr.KindInvalidInput, "booking code must not be empty")
	}

	if cfg.BookingRefused() {
		return nil, "", apperr.New(apperr.KindIntegrationUnavailable, "reservation source for this integration is unavailable")
	}

	events, err := v.events.EventsByIntegration(ctx, cfg.IntegrationID)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, "loading rental events", err)
	}

	attr := cfg.AuthAttribute
	if attr == "" {
		attr = reservation.DefaultAuthAttribute
	}

	matched := findMatch(events, attr, input)
	if matched == nil {
		return nil, "", apperr.New(apperr.KindNotFound, "no matching reservation found")
	}

	if !inWindow(matched, cfg.CheckoutGraceMinutes, now) {
		return nil, "", apperr.New(apperr.KindOutsideWindow, "reservation is outside its access window")
	}

	ref = Ref(cfg.IntegrationID, matched.EventIndex)

	existing, err := v.grants.FindActiveByMACAndIdentifier(ctx, mac, string(ref))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", apperr.Wrap(apperr.KindInternal, "checking for an existing grant", err)
	}
	if existing != nil {
		return nil, "", apperr.New(apperr.KindDuplicateRedemption, "a grant already exists for this device and reservation")
	}

	return matched, ref, nil
}

// inWindow reports whether now falls within the event's admission window:
// [start - EarlyWindow, end + checkoutGraceMinutes] (spec §4.F).
func inWindow(e *reservation.RentalEvent, checkoutGraceMinutes int, now time.Time) bool {
	windowStart := e.StartUTC.Add(-EarlyWindow)
	windowEnd := e.EndUTC.Add(time.Duration(checkoutGraceMinutes) * time.Minute)
	return !now.Before(windowStart) && !now.After(windowEnd)
}

// findMatch performs a case-insensitive match of input against event.<attr>,
// falling back per the projection rule when a specific event lacks attr.
func findMatch(events []*reservation.RentalEvent, attr, input string) *reservation.RentalEvent {
	upperInput := strings.ToUpper(input)
	for _, e := range events {
		id, ok := e.Identifier(attr)
		if !ok {
			continue
		}
		if strings.ToUpper(id) == upperInput {
			return e
		}
	}
	return nil
}
