package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSessionKeyIsScopedToController(t *testing.T) {
	a := (&OmadaController{cfg: OmadaConfig{ControllerID: "site-a"}}).sessionKey()
	b := (&OmadaController{cfg: OmadaConfig{ControllerID: "site-b"}}).sessionKey()
	if a == b {
		t.Fatalf("expected distinct session keys per controller id, got %q for both", a)
	}
}

func TestRetryPolicyIsFixedNoJitter(t *testing.T) {
	b := retryPolicy()
	if first := b.NextBackOff(); first != time.Second {
		t.Fatalf("expected first retry delay of 1s, got %v", first)
	}
	if second := b.NextBackOff(); second != 2*time.Second {
		t.Fatalf("expected second retry delay of 2s, got %v", second)
	}
	if third := b.NextBackOff(); third != 4*time.Second {
		t.Fatalf("expected third retry delay of 4s, got %v", third)
	}
	if fourth := b.NextBackOff(); fourth != 8*time.Second {
		t.Fatalf("expected fourth retry delay of 8s (the configured MaxInterval), got %v", fourth)
	}
}

// requestLog records the path and decoded body of every request a test
// server receives, so assertions can inspect them after the call returns.
type requestLog struct {
	path string
	body map[string]any
}

func newOmadaTestServer(t *testing.T, log *[]requestLog) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		*log = append(*log, requestLog{path: r.URL.Path, body: body})

		switch {
		case strings.HasSuffix(r.URL.Path, "/api/v2/hotspot/login"):
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]string{"token": "csrf-token"},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func TestAuthorizeOncePrefixesPathWithControllerIDAndSendsGatewayMAC(t *testing.T) {
	var log []requestLog
	srv := newOmadaTestServer(t, &log)
	defer srv.Close()

	c := NewOmadaController(OmadaConfig{
		ControllerID: "ctrl-1",
		BaseURL:      srv.URL,
		Site:         "default",
		SSIDName:     "Guest",
		GatewayMAC:   "aa:bb:cc:dd:ee:ff",
		Username:     "operator",
		Password:     "secret",
	}, nil, slog.Default())

	if _, err := c.Authorize(context.Background(), "11:22:33:44:55:66", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}

	if len(log) != 2 {
		t.Fatalf("expected 2 requests (login, authorize), got %d", len(log))
	}

	loginReq, authReq := log[0], log[1]
	if !strings.HasPrefix(loginReq.path, "/ctrl-1/") {
		t.Errorf("login path = %q, want prefix /ctrl-1/", loginReq.path)
	}
	if loginReq.body["name"] != "operator" {
		t.Errorf("login body %v missing name=operator", loginReq.body)
	}
	if _, hasUsername := loginReq.body["username"]; hasUsername {
		t.Errorf("login body %v should not use the username field", loginReq.body)
	}

	if !strings.HasPrefix(authReq.path, "/ctrl-1/") {
		t.Errorf("authorize path = %q, want prefix /ctrl-1/", authReq.path)
	}
	if !strings.HasSuffix(authReq.path, "/api/v2/hotspot/extPortal/auth") {
		t.Errorf("authorize path = %q, want suffix /api/v2/hotspot/extPortal/auth", authReq.path)
	}
	if authReq.body["gatewayMac"] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("authorize body %v missing gatewayMac", authReq.body)
	}
	if authReq.body["clientMac"] != "11:22:33:44:55:66" {
		t.Errorf("authorize body %v missing clientMac", authReq.body)
	}
}

func TestRevokeOncePrefixesPathWithControllerID(t *testing.T) {
	var log []requestLog
	srv := newOmadaTestServer(t, &log)
	defer srv.Close()

	c := NewOmadaController(OmadaConfig{
		ControllerID: "ctrl-2",
		BaseURL:      srv.URL,
		Site:         "default",
	}, nil, slog.Default())

	if err := c.Revoke(context.Background(), "", "11:22:33:44:55:66"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	if len(log) != 2 {
		t.Fatalf("expected 2 requests (login, revoke), got %d", len(log))
	}
	revokeReq := log[1]
	if !strings.HasPrefix(revokeReq.path, "/ctrl-2/") {
		t.Errorf("revoke path = %q, want prefix /ctrl-2/", revokeReq.path)
	}
	if !strings.HasSuffix(revokeReq.path, "/api/v2/hotspot/extPortal/unauth") {
		t.Errorf("revoke path = %q, want suffix /api/v2/hotspot/extPortal/unauth", revokeReq.path)
	}
}
