package grant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/db"
	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
)

// ControllerQueue is the subset of the controller retry queue (pkg/controller)
// that the grant service needs. Defined here, rather than imported from
// pkg/controller, so that pkg/controller can depend on pkg/grant's types
// without a cycle. Each method takes the caller's transaction, so the
// controller operation commits together with the grant mutation (spec §5).
type ControllerQueue interface {
	EnqueueAuthorize(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string, endUTC time.Time) error
	EnqueueRevoke(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string) error
	EnqueueExtend(ctx context.Context, dbtx db.DBTX, grantID uuid.UUID, mac string, newEndUTC time.Time) error
}

// Service implements the grant state machine of spec §4.D.
type Service struct {
	pool  *pgxpool.Pool
	store *Store
	queue ControllerQueue
}

// NewService creates a grant Service.
func NewService(pool *pgxpool.Pool, queue ControllerQueue) *Service {
	return &Service{pool: pool, store: NewStore(pool), queue: queue}
}

// CreateParams describes a new grant to be created by either the voucher
// redemption path or the booking path.
type CreateParams struct {
	VoucherCode   *string
	BookingRef    *string
	IntegrationID *string
	UserInputCode *string
	MAC           string
	SessionToken  *string
	Now           time.Time
	DurationMins  int
}

// Create creates a PENDING grant, rounding start/end to the enclosing
// minute boundary, and enqueues the controller authorize call. The whole
// operation runs inside a serializable transaction scoped to (mac,
// identifier) so that concurrent redemptions of the same (code, mac) yield
// at most one grant (spec §5's 100-concurrent-redemptions race test).
func (s *Service) Create(ctx context.Context, p CreateParams) (*Grant, error) {
	identifier := ""
	if p.VoucherCode != nil {
		identifier = *p.VoucherCode
	} else if p.BookingRef != nil {
		identifier = *p.BookingRef
	}
	if identifier == "" || p.MAC == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "grant requires a mac and a voucher code or booking reference")
	}

	var created *Grant
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)

		existing, err := store.FindActiveByMACAndIdentifier(ctx, p.MAC, identifier)
		if err != nil && err != pgx.ErrNoRows {
			return apperr.Wrap(apperr.KindInternal, "checking for an existing grant", err)
		}
		if existing != nil {
			return apperr.New(apperr.KindDuplicateRedemption, "a grant already exists for this device and code")
		}

		start := FloorMinute(p.Now)
		end := CeilMinute(p.Now.Add(time.Duration(p.DurationMins) * time.Minute))

		g := &Grant{
			ID:            uuid.New(),
			VoucherCode:   p.VoucherCode,
			BookingRef:    p.BookingRef,
			IntegrationID: p.IntegrationID,
			UserInputCode: p.UserInputCode,
			MAC:           p.MAC,
			SessionToken:  p.SessionToken,
			StartUTC:      start,
			EndUTC:        end,
			Status:        StatusPending,
		}

		created, err = store.Create(ctx, g)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "creating grant", err)
		}

		if s.queue != nil {
			if err := s.queue.EnqueueAuthorize(ctx, tx, created.ID, created.MAC, created.EndUTC); err != nil {
				return apperr.Wrap(apperr.KindControllerUnavailable, "enqueueing controller authorize", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.GrantTransitionsTotal.WithLabelValues(StatusPending).Inc()
	return created, nil
}

// Extend extends a grant's end time by minutes. A REVOKED grant cannot be
// extended. An EXPIRED grant is reactivated: end = ceil(max(end, now) +
// minutes), status = ACTIVE.
func (s *Service) Extend(ctx context.Context, id uuid.UUID, minutes int, now time.Time) (*Grant, error) {
	if minutes <= 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "extension minutes must be positive")
	}

	var updated *Grant
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)

		g, err := store.Get(ctx, id)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.New(apperr.KindNotFound, "grant not found")
			}
			return apperr.Wrap(apperr.KindInternal, "loading grant", err)
		}

		if g.Status == StatusRevoked {
			return apperr.New(apperr.KindRevoked, "a revoked grant cannot be extended")
		}

		base := g.EndUTC
		newStatus := g.Status
		if g.Status == StatusExpired {
			if now.After(base) {
				base = now
			}
			newStatus = StatusActive
		}
		newEnd := CeilMinute(base.Add(time.Duration(minutes) * time.Minute))

		updated, err = store.UpdateStatusAndEnd(ctx, id, newStatus, newEnd)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "extending grant", err)
		}

		if s.queue != nil {
			if err := s.queue.EnqueueExtend(ctx, tx, updated.ID, updated.MAC, updated.EndUTC); err != nil {
				return apperr.Wrap(apperr.KindControllerUnavailable, "enqueueing controller extend", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.GrantTransitionsTotal.WithLabelValues(updated.Status).Inc()
	return updated, nil
}

// Revoke revokes a grant. Idempotent: revoking an already-REVOKED grant is
// a no-op success (spec §4.D).
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (*Grant, error) {
	var (
		updated   *Grant
		didRevoke bool
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)

		g, err := store.Get(ctx, id)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.New(apperr.KindNotFound, "grant not found")
			}
			return apperr.Wrap(apperr.KindInternal, "loading grant", err)
		}

		if g.Status == StatusRevoked {
			updated = g
			return nil
		}

		updated, err = store.UpdateStatusAndEnd(ctx, id, StatusRevoked, nil)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "revoking grant", err)
		}
		didRevoke = true

		if s.queue != nil {
			if err := s.queue.EnqueueRevoke(ctx, tx, updated.ID, updated.MAC); err != nil {
				return apperr.Wrap(apperr.KindControllerUnavailable, "enqueueing controller revoke", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if didRevoke {
		telemetry.GrantTransitionsTotal.WithLabelValues(StatusRevoked).Inc()
	}
	return updated, nil
}

// ReconcileMAC records a MAC address resolved after session-token fallback
// creation (spec §4.I.5). Reconciling a terminal grant is a no-op.
func (s *Service) ReconcileMAC(ctx context.Context, id uuid.UUID, mac string) (*Grant, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "grant not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "loading grant", err)
	}
	if g.IsTerminal() {
		return g, nil
	}
	return s.store.UpdateMAC(ctx, id, mac)
}

// ExpireSweep transitions ACTIVE grants past their end_utc to EXPIRED. No
// controller call is required: controller-side expiry is driven by the
// `time` parameter sent at authorize (spec §4.D).
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.GrantTransitionsTotal.WithLabelValues(StatusExpired).Add(float64(n))
	}
	return n, nil
}

// Get returns a grant by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Grant, error) {
	g, err := s.store.Get(ctx, id)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "grant not found")
	}
	return g, err
}

// List returns grants in the given status (empty string = all), newest
// first.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Grant, error) {
	return s.store.ListByStatus(ctx, status, limit, offset)
}
