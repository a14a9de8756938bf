package reservation

import (
	"testing"
	"time"
)

func TestProjectSkipsEventsWithNoResolvableIdentifier(t *testing.T) {
	cfg := &IntegrationConfig{IntegrationID: "int-1", AuthAttribute: AttrSlotCode}
	now := time.Now().UTC()

	raw := []RawEvent{
		{Index: 0, SlotCode: strp("A1"), StartUTC: now, EndUTC: now.Add(time.Hour)},
		{Index: 1, StartUTC: now, EndUTC: now.Add(time.Hour)}, // no identifier at all
		{Index: 2, SlotName: strp("Cabin 2"), StartUTC: now, EndUTC: now.Add(time.Hour)},
	}

	events := Project(cfg, raw)
	if len(events) != 2 {
		t.Fatalf("Project() returned %d events, want 2", len(events))
	}
	if events[0].EventIndex != 0 || events[1].EventIndex != 2 {
		t.Errorf("Project() kept indices %d, %d; want 0, 2", events[0].EventIndex, events[1].EventIndex)
	}
}

func TestProjectDefaultsAuthAttribute(t *testing.T) {
	cfg := &IntegrationConfig{IntegrationID: "int-1"}
	now := time.Now().UTC()

	raw := []RawEvent{{Index: 0, SlotCode: strp("A1"), StartUTC: now, EndUTC: now.Add(time.Hour)}}
	events := Project(cfg, raw)
	if len(events) != 1 {
		t.Fatalf("Project() returned %d events, want 1", len(events))
	}
}
