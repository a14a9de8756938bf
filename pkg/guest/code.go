package guest

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/pkg/booking"
	"github.com/tykeal/homeassistant-captive-portal/pkg/grant"
	"github.com/tykeal/homeassistant-captive-portal/pkg/reservation"
	"github.com/tykeal/homeassistant-captive-portal/pkg/voucher"
)

// voucherCodeRegex matches the A-Z0-9 voucher alphabet, length 4-24 (spec
// §4.I.4).
var voucherCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,24}$`)

// Dispatcher implements the unified code parse + dispatch of spec §4.I.4:
// try every enabled integration's booking validator first (iterate until a
// match or exhaustion), falling back to the voucher path; if both would
// succeed, booking wins, since a matched reservation is a stronger signal
// of guest intent than a shared voucher code happening to also parse.
type Dispatcher struct {
	vouchers     *voucher.Service
	grants       *grant.Service
	bookingVal   *booking.Validator
	integrations *reservation.Store
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(vouchers *voucher.Service, grants *grant.Service, bookingVal *booking.Validator, integrations *reservation.Store) *Dispatcher {
	return &Dispatcher{vouchers: vouchers, grants: grants, bookingVal: bookingVal, integrations: integrations}
}

// Dispatch resolves userInput to a grant via the booking or voucher path
// and creates it, preserving userInput as user_input_code.
func (d *Dispatcher) Dispatch(ctx context.Context, userInput, mac string, now time.Time) (*grant.Grant, error) {
	code := strings.TrimSpace(userInput)
	if code == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "code must not be empty")
	}

	cfgs, err := d.integrations.EnabledIntegrations(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "loading integrations", err)
	}

	var (
		matchedEvent *reservation.RentalEvent
		matchedRef   booking.EventRef
		matchedCfg   *reservation.IntegrationConfig
		lastErr      error
	)
	for _, cfg := range cfgs {
		ev, ref, err := d.bookingVal.Validate(ctx, code, cfg, mac, now)
		if err == nil {
			matchedEvent, matchedRef, matchedCfg = ev, ref, cfg
			break
		}
		lastErr = err
	}

	if matchedEvent != nil {
		bookingRef := string(matchedRef)
		integrationID := matchedCfg.IntegrationID
		return d.grants.Create(ctx, grant.CreateParams{
			BookingRef:    &bookingRef,
			IntegrationID: &integrationID,
			UserInputCode: &code,
			MAC:           mac,
			Now:           now,
			DurationMins:  bookingDurationMinutes(matchedEvent, matchedCfg, now),
		})
	}

	if voucherCodeRegex.MatchString(strings.ToUpper(code)) {
		if v, err := d.vouchers.Get(ctx, code); err == nil && v.Status != voucher.StatusRevoked && !v.IsExpired(now) {
			return d.vouchers.Redeem(ctx, code, mac, code, now)
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperr.New(apperr.KindNotFound, "code does not match a voucher or reservation")
}

// bookingDurationMinutes computes the minutes remaining until the event's
// admission window closes (end + checkout grace), ceiled to whole minutes,
// for use as the grant's duration (spec §4.F/§4.D).
func bookingDurationMinutes(e *reservation.RentalEvent, cfg *reservation.IntegrationConfig, now time.Time) int {
	windowEnd := e.EndUTC.Add(time.Duration(cfg.CheckoutGraceMinutes) * time.Minute)
	minutes := int(math.Ceil(windowEnd.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
