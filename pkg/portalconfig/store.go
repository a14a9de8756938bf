package portalconfig

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// singletonID is the fixed primary key of the portal_config table's only
// row (spec §3: PortalConfig is a singleton).
const singletonID = 1

// Store provides database operations for the portal config singleton.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a portal config Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const configColumns = `rate_limit_attempts, rate_limit_window_seconds, success_redirect_url, voucher_length_default, updated_utc`

func scanConfig(row pgx.Row) (*PortalConfig, error) {
	var c PortalConfig
	if err := row.Scan(&c.RateLimitAttempts, &c.RateLimitWindowSeconds, &c.SuccessRedirectURL, &c.VoucherLengthDefault, &c.UpdatedUTC); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the current portal config, or pgx.ErrNoRows if the singleton
// row has never been written.
func (s *Store) Get(ctx context.Context) (*PortalConfig, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+configColumns+` FROM portal_config WHERE id = $1`, singletonID)
	return scanConfig(row)
}

// Upsert writes the portal config singleton, creating it on first write.
func (s *Store) Upsert(ctx context.Context, c *PortalConfig) (*PortalConfig, error) {
	row := s.dbtx.QueryRow(ctx, `INSERT INTO portal_config (
		id, rate_limit_attempts, rate_limit_window_seconds, success_redirect_url, voucher_length_default, updated_utc
	) VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (id) DO UPDATE SET
		rate_limit_attempts = EXCLUDED.rate_limit_attempts,
		rate_limit_window_seconds = EXCLUDED.rate_limit_window_seconds,
		success_redirect_url = EXCLUDED.success_redirect_url,
		voucher_length_default = EXCLUDED.voucher_length_default,
		updated_utc = now()
	RETURNING `+configColumns,
		singletonID, c.RateLimitAttempts, c.RateLimitWindowSeconds, c.SuccessRedirectURL, c.VoucherLengthDefault,
	)
	return scanConfig(row)
}
