package portalconfig

import "testing"

func TestDefaultMatchesSpecConstants(t *testing.T) {
	d := Default()
	if d.RateLimitAttempts != DefaultRateLimitAttempts {
		t.Errorf("RateLimitAttempts = %d, want %d", d.RateLimitAttempts, DefaultRateLimitAttempts)
	}
	if d.RateLimitWindowSeconds != DefaultRateLimitWindowSeconds {
		t.Errorf("RateLimitWindowSeconds = %d, want %d", d.RateLimitWindowSeconds, DefaultRateLimitWindowSeconds)
	}
	if d.SuccessRedirectURL != DefaultSuccessRedirectURL {
		t.Errorf("SuccessRedirectURL = %q, want %q", d.SuccessRedirectURL, DefaultSuccessRedirectURL)
	}
	if d.VoucherLengthDefault != DefaultVoucherLength {
		t.Errorf("VoucherLengthDefault = %d, want %d", d.VoucherLengthDefault, DefaultVoucherLength)
	}
}

func TestRateLimitWindowConvertsSecondsToDuration(t *testing.T) {
	c := &PortalConfig{RateLimitWindowSeconds: 90}
	if got, want := c.RateLimitWindow().Seconds(), 90.0; got != want {
		t.Errorf("RateLimitWindow() = %v seconds, want %v", got, want)
	}
}
