package portalconfig

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
)

// Service manages the PortalConfig singleton.
type Service struct {
	store *Store
}

// NewService creates a portal config Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{store: NewStore(pool)}
}

// Get returns the current portal config, falling back to Default() if the
// singleton has never been written.
func (s *Service) Get(ctx context.Context) (*PortalConfig, error) {
	cfg, err := s.store.Get(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "loading portal config", err)
	}
	return cfg, nil
}

// UpdateParams carries the admin-supplied fields for Update.
type UpdateParams struct {
	RateLimitAttempts      int
	RateLimitWindowSeconds int
	SuccessRedirectURL     string
	VoucherLengthDefault   int
}

// Update validates and persists a new portal config, replacing the
// singleton in full (spec §3's bounds on each field).
func (s *Service) Update(ctx context.Context, p UpdateParams) (*PortalConfig, error) {
	if p.RateLimitAttempts < MinRateLimitAttempts || p.RateLimitAttempts > MaxRateLimitAttempts {
		return nil, apperr.New(apperr.KindInvalidInput, "rate_limit_attempts must be between 1 and 100")
	}
	if p.RateLimitWindowSeconds < MinRateLimitWindowSeconds || p.RateLimitWindowSeconds > MaxRateLimitWindowSeconds {
		return nil, apperr.New(apperr.KindInvalidInput, "rate_limit_window_seconds must be between 10 and 3600")
	}
	if p.VoucherLengthDefault < MinVoucherLength || p.VoucherLengthDefault > MaxVoucherLength {
		return nil, apperr.New(apperr.KindInvalidInput, "voucher_length_default must be between 4 and 24")
	}
	if p.SuccessRedirectURL == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "success_redirect_url must not be empty")
	}

	cfg := &PortalConfig{
		RateLimitAttempts:      p.RateLimitAttempts,
		RateLimitWindowSeconds: p.RateLimitWindowSeconds,
		SuccessRedirectURL:     p.SuccessRedirectURL,
		VoucherLengthDefault:   p.VoucherLengthDefault,
	}

	updated, err := s.store.Upsert(ctx, cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "saving portal config", err)
	}
	return updated, nil
}
