package reservation

// Project converts a source's raw event list into persistable RentalEvent
// rows, per spec §4.E: for each event, resolve an authorization identifier
// via the configured auth_attribute falling back to slot_code then
// slot_name; events with no resolvable identifier are skipped entirely
// rather than persisted with a blank identifier.
func Project(cfg *IntegrationConfig, raw []RawEvent) []*RentalEvent {
	attr := cfg.AuthAttribute
	if attr == "" {
		attr = DefaultAuthAttribute
	}

	out := make([]*RentalEvent, 0, len(raw))
	for _, r := range raw {
		candidate := &RentalEvent{
			IntegrationID: cfg.IntegrationID,
			EventIndex:    r.Index,
			SlotName:      r.SlotName,
			SlotCode:      r.SlotCode,
			LastFour:      r.LastFour,
			StartUTC:      r.StartUTC,
			EndUTC:        r.EndUTC,
			RawAttributes: r.Raw,
		}

		if _, ok := candidate.Identifier(attr); !ok {
			continue
		}

		out = append(out, candidate)
	}
	return out
}
