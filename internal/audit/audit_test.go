package audit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
)

func TestLogDropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test", TargetType: "grant"})
	}

	// The next log should be dropped (non-blocking).
	w.Log(Entry{Action: "dropped", TargetType: "grant"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogOutcomeExtractsIdentityAndCorrelationID(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start — read from the channel directly.

	req := httptest.NewRequest("POST", "/admin/grants/extend", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	id := &auth.Identity{Subject: "alice", Role: auth.RoleOperator}
	req = req.WithContext(auth.NewContext(req.Context(), id))

	targetID := uuid.New()
	var entry Entry
	handler := httpserver.RequestID(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.LogOutcome(r, "grants.extend", "grant", targetID, OutcomeSuccess, nil)
		entry = <-w.entries
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry.Actor != "alice" || entry.RoleSnapshot != auth.RoleOperator {
		t.Errorf("entry actor/role = %q/%q, want alice/operator", entry.Actor, entry.RoleSnapshot)
	}
	if entry.Action != "grants.extend" || entry.TargetType != "grant" {
		t.Errorf("entry action/target = %q/%q", entry.Action, entry.TargetType)
	}
	if entry.TargetID != targetID {
		t.Errorf("entry target id = %v, want %v", entry.TargetID, targetID)
	}
	if entry.Outcome != OutcomeSuccess {
		t.Errorf("entry outcome = %q, want %q", entry.Outcome, OutcomeSuccess)
	}
	if entry.CorrelationID != "corr-123" {
		t.Errorf("entry correlation id = %q, want %q", entry.CorrelationID, "corr-123")
	}
}
