// Package guest implements the guest authorization pipeline of spec §4.I:
// IP derivation, per-IP rate limiting, CSRF double-submit, unified code
// dispatch, MAC capture/normalization, redirect validation, and the
// captive-portal detection routes.
package guest

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP derives the apparent client IP, walking X-Forwarded-For from the
// nearest hop leftward only while each hop is inside a trusted proxy
// network. The first untrusted entry encountered becomes the client IP; an
// unparseable entry stops the walk at the last trusted hop, which is then
// returned. A direct peer outside the trusted set is never overridden
// by its own X-Forwarded-For header. Grounded on the vendored clientIP
// helper's header-then-RemoteAddr fallback shape, generalized from a flat
// first-entry read to the CIDR-gated walk spec §4.I.1 requires.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := peerIP(r.RemoteAddr)

	if !isTrusted(peer, trusted) {
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}

	hops := strings.Split(xff, ",")
	candidate := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil || !isTrusted(hop, trusted) {
			if ip != nil {
				return hop
			}
			return candidate
		}
		candidate = hop
	}
	return candidate
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(ip string, trusted []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ParseCIDRs parses a list of CIDR strings, skipping any that fail to
// parse (a malformed entry in configuration should not take down the
// whole trusted-proxy gate; it is simply not trusted).
func ParseCIDRs(cidrs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(c))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
