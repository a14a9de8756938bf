package reservation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSourceFetchEventsDecodesResponse(t *testing.T) {
	slot := "A12"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization header = %q, want Bearer test-token", got)
		}
		if r.URL.Path != "/integrations/unit-1/events" {
			t.Errorf("path = %q, want /integrations/unit-1/events", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"index":     0,
				"slot_code": slot,
				"start_utc": time.Date(2026, 1, 1, 15, 0, 0, 0, time.UTC),
				"end_utc":   time.Date(2026, 1, 3, 11, 0, 0, 0, time.UTC),
			},
		})
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "test-token")
	events, err := src.FetchEvents(context.Background(), "unit-1")
	if err != nil {
		t.Fatalf("FetchEvents() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].SlotCode == nil || *events[0].SlotCode != slot {
		t.Errorf("SlotCode = %v, want %q", events[0].SlotCode, slot)
	}
}

func TestHTTPSourceFetchEventsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "test-token")
	if _, err := src.FetchEvents(context.Background(), "unit-1"); err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}
