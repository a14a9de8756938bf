package voucher

import (
	"testing"
	"time"
)

func TestVoucherIsExpired(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	v := &Voucher{
		CreatedUTC:      created,
		DurationMinutes: 120,
		ExpiresUTC:      created.Add(120 * time.Minute),
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "well before expiry", now: created.Add(time.Minute), want: false},
		{name: "exactly at expiry", now: v.ExpiresUTC, want: true},
		{name: "after expiry", now: v.ExpiresUTC.Add(time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"abcd1234": "ABCD1234",
		"ABCD1234": "ABCD1234",
		"AbCd12":   "ABCD12",
	}
	for in, want := range tests {
		if got := normalizeCode(in); got != want {
			t.Errorf("normalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}
