package guest

import "strings"

// MACHeaders lists the request headers checked, in order, for a
// guest-supplied device MAC address (spec §4.I.5).
var MACHeaders = []string{"X-MAC-Address", "X-Client-Mac", "Client-MAC"}

// NormalizeMAC accepts colon-, hyphen-, dot-separated (Cisco-style), or
// unseparated hex MAC addresses and returns the canonical uppercase
// colon-separated form "AA:BB:CC:DD:EE:FF". ok is false for anything that
// doesn't resolve to exactly 12 hex digits.
func NormalizeMAC(raw string) (mac string, ok bool) {
	var hex strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			hex.WriteRune(r)
		case r == ':', r == '-', r == '.', r == ' ':
			continue
		default:
			return "", false
		}
	}

	digits := strings.ToUpper(hex.String())
	if len(digits) != 12 {
		return "", false
	}

	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(digits[i : i+2])
	}
	return b.String(), true
}

// CaptureMAC checks r's configured headers, in order, for a MAC address,
// returning the first one that normalizes successfully.
func CaptureMAC(headerFunc func(string) string) (mac string, ok bool) {
	for _, h := range MACHeaders {
		if v := headerFunc(h); v != "" {
			if norm, normOK := NormalizeMAC(v); normOK {
				return norm, true
			}
		}
	}
	return "", false
}
