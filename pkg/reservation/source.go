package reservation

import (
	"context"
	"encoding/json"
	"time"
)

// RawEvent is a single reservation-source event as returned by a Source,
// before projection into a persisted RentalEvent.
type RawEvent struct {
	Index    int
	SlotName *string
	SlotCode *string
	LastFour *string
	StartUTC time.Time
	EndUTC   time.Time
	Raw      json.RawMessage
}

// Source fetches the current ordered event list for one integration (spec
// §4.E: "the source yields an ordered list of events keyed by index 0...N").
// The reservation source's own API surface is out of scope (spec.md
// Non-goals); implementations adapt a specific booking backend to this
// interface.
type Source interface {
	FetchEvents(ctx context.Context, integrationID string) ([]RawEvent, error)
}
