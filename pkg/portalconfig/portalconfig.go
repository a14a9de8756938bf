// Package portalconfig implements the PortalConfig singleton of spec §3:
// the guest rate-limit bounds, success redirect target, and default voucher
// length, all administrator-tunable at runtime.
package portalconfig

import "time"

// Default values applied when the singleton row has never been written.
const (
	DefaultRateLimitAttempts      = 5
	DefaultRateLimitWindowSeconds = 60
	DefaultSuccessRedirectURL     = "/welcome"
	DefaultVoucherLength          = 10
)

// Bounds enforced on every write (spec §3).
const (
	MinRateLimitAttempts = 1
	MaxRateLimitAttempts = 100

	MinRateLimitWindowSeconds = 10
	MaxRateLimitWindowSeconds = 3600

	MinVoucherLength = 4
	MaxVoucherLength = 24
)

// PortalConfig is the single administrator-tunable row governing the guest
// pipeline.
type PortalConfig struct {
	RateLimitAttempts      int
	RateLimitWindowSeconds int
	SuccessRedirectURL     string
	VoucherLengthDefault   int
	UpdatedUTC             time.Time
}

// RateLimitWindow is RateLimitWindowSeconds as a time.Duration.
func (c *PortalConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// Default returns the built-in PortalConfig used before any admin write.
func Default() *PortalConfig {
	return &PortalConfig{
		RateLimitAttempts:      DefaultRateLimitAttempts,
		RateLimitWindowSeconds: DefaultRateLimitWindowSeconds,
		SuccessRedirectURL:     DefaultSuccessRedirectURL,
		VoucherLengthDefault:   DefaultVoucherLength,
	}
}
