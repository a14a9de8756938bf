package guest

import (
	"net/http"
	"testing"
)

func TestClientIPDirectPeerNotTrusted(t *testing.T) {
	r := &http.Request{RemoteAddr: "203.0.113.5:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "9.9.9.9")

	trusted := ParseCIDRs([]string{"10.0.0.0/8"})
	if got := ClientIP(r, trusted); got != "203.0.113.5" {
		t.Errorf("ClientIP() = %q, want direct peer since it is untrusted", got)
	}
}

func TestClientIPWalksTrustedChain(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")

	trusted := ParseCIDRs([]string{"10.0.0.0/8"})
	if got := ClientIP(r, trusted); got != "203.0.113.9" {
		t.Errorf("ClientIP() = %q, want the first untrusted hop 203.0.113.9", got)
	}
}

func TestClientIPAllHopsTrustedFallsBackToLeftmost(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.2")

	trusted := ParseCIDRs([]string{"10.0.0.0/8"})
	if got := ClientIP(r, trusted); got != "10.0.0.3" {
		t.Errorf("ClientIP() = %q, want leftmost hop 10.0.0.3 when the whole chain is trusted", got)
	}
}

func TestClientIPNoForwardedHeader(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	trusted := ParseCIDRs([]string{"10.0.0.0/8"})
	if got := ClientIP(r, trusted); got != "10.0.0.1" {
		t.Errorf("ClientIP() = %q, want the peer when no X-Forwarded-For is present", got)
	}
}
