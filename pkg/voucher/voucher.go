// Package voucher implements the staff-issued voucher lifecycle of spec
// §4.C: CSPRNG code generation with collision retry, case-insensitive
// redemption under concurrency, and expiry.
package voucher

import "time"

// Status values for a Voucher.
const (
	StatusUnused  = "UNUSED"
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
	StatusRevoked = "REVOKED"
)

// Alphabet is the CSPRNG code character set (spec §3: A-Z0-9).
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinLength and MaxLength bound voucher code length (spec §3).
const (
	MinLength = 4
	MaxLength = 24
	// DefaultLength is used when the caller does not specify one.
	DefaultLength = 10
)

// Voucher is the Voucher entity of spec §3.
type Voucher struct {
	Code            string
	CreatedUTC      time.Time
	DurationMinutes int
	ExpiresUTC      time.Time
	UpKbps          *int
	DownKbps        *int
	Status          string
	BookingRef      *string
	RedeemedCount   int
	LastRedeemedUTC *time.Time
}

// IsExpired reports whether the voucher is past its expiry at the given
// instant, regardless of status (spec §3: "A voucher past expires_utc must
// not produce new grants even if its grant count would allow it").
func (v *Voucher) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresUTC)
}
