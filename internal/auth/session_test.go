package auth

import (
	"testing"
	"time"
)

func TestSessionManagerRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}

	token, err := sm.IssueToken(SessionClaims{Subject: "alice", Email: "alice@example.com", Role: RoleAdmin, UserID: "11111111-1111-1111-1111-111111111111"})
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	claims, err := sm.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}

	if claims.Subject != "alice" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v, want subject=alice role=admin", claims)
	}
}

func TestSessionManagerRejectsExpiredToken(t *testing.T) {
	sm, err := NewSessionManager("0123456789abcdef0123456789abcdef", -time.Minute)
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}

	token, err := sm.IssueToken(SessionClaims{Subject: "alice", Role: RoleViewer})
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	if _, err := sm.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() on expired token returned no error")
	}
}

func TestNewSessionManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewSessionManager("too-short", time.Hour); err == nil {
		t.Fatal("NewSessionManager() with short secret returned no error")
	}
}
