package guest

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
)

func TestSessionTrackerTakeIsOneShot(t *testing.T) {
	tr := NewSessionTracker(nil, slog.Default())
	grantID := uuid.New()
	tr.Track("sess-1", grantID)

	entry, ok := tr.take("sess-1")
	if !ok || entry.grantID != grantID {
		t.Fatalf("take() = %+v, %v, want the tracked grant id", entry, ok)
	}

	if _, ok := tr.take("sess-1"); ok {
		t.Error("second take() for the same session must report not found")
	}
}

func TestSessionTrackerTakeUnknownToken(t *testing.T) {
	tr := NewSessionTracker(nil, slog.Default())
	if _, ok := tr.take("never-tracked"); ok {
		t.Error("take() of an untracked session must report not found")
	}
}

func TestSessionTrackerTracksIndependentSessions(t *testing.T) {
	tr := NewSessionTracker(nil, slog.Default())
	a, b := uuid.New(), uuid.New()
	tr.Track("sess-a", a)
	tr.Track("sess-b", b)

	entryA, ok := tr.take("sess-a")
	if !ok || entryA.grantID != a {
		t.Fatalf("take(sess-a) = %+v, %v, want grant %v", entryA, ok, a)
	}
	entryB, ok := tr.take("sess-b")
	if !ok || entryB.grantID != b {
		t.Fatalf("take(sess-b) = %+v, %v, want grant %v", entryB, ok, b)
	}
}

func TestSessionTrackerReconcileByGrantUnknownGrant(t *testing.T) {
	tr := NewSessionTracker(nil, slog.Default())
	_, err := tr.ReconcileByGrant(context.Background(), uuid.New(), "AA:BB:CC:DD:EE:FF")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("ReconcileByGrant() error kind = %v, want %v", apperr.KindOf(err), apperr.KindNotFound)
	}
}

func TestSessionTrackerReconcileByGrantIsOneShot(t *testing.T) {
	tr := NewSessionTracker(nil, slog.Default())
	grantID := uuid.New()
	tr.Track("sess-1", grantID)

	if _, ok := tr.take("sess-1"); !ok {
		t.Fatal("expected the tracked session to still be pending")
	}

	// take() above already consumed the entry; re-track and confirm the
	// grant-id index is cleared by take() alongside the token index.
	tr.Track("sess-2", grantID)
	if _, ok := tr.byGrant[grantID]; !ok {
		t.Fatal("expected byGrant to be repopulated by Track")
	}
	tr.take("sess-2")
	if _, ok := tr.byGrant[grantID]; ok {
		t.Error("expected byGrant entry to be removed once taken")
	}
}
