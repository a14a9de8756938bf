package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tykeal/homeassistant-captive-portal/internal/apperr"
	"github.com/tykeal/homeassistant-captive-portal/internal/db"
	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
	"github.com/tykeal/homeassistant-captive-portal/pkg/grant"
)

// collisionBackoff is the fixed 50/100/200/400/800ms schedule of spec §4.C.
// The doubling schedule is simple and closed-ended, so it is implemented
// directly rather than through cenkalti/backoff (reserved for the
// controller adapter's fixed retry and the retry queue's jittered
// schedule).
var collisionBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

// CollisionError is returned when code generation exhausts its retry budget.
type CollisionError struct{}

func (CollisionError) Error() string { return "voucher code generation exhausted its retry budget" }

// Service implements the voucher lifecycle of spec §4.C.
type Service struct {
	pool  *pgxpool.Pool
	store *Store
	redis *redis.Client // optional: best-effort redemption lock, see Redeem
	queue grant.ControllerQueue
}

// NewService creates a voucher Service. rdb may be nil, in which case
// redemption relies solely on the serializable transaction below for its
// concurrency guarantee.
func NewService(pool *pgxpool.Pool, rdb *redis.Client, queue grant.ControllerQueue) *Service {
	return &Service{pool: pool, store: NewStore(pool), redis: rdb, queue: queue}
}

// CreateParams describes a new voucher to be minted by staff.
type CreateParams struct {
	Length          int
	DurationMinutes int
	UpKbps          *int
	DownKbps        *int
	BookingRef      *string
}

// Create generates a CSPRNG code from Alphabet and inserts it, retrying on
// collision up to 5 times with the fixed backoff schedule (spec §4.C).
func (s *Service) Create(ctx context.Context, p CreateParams) (*Voucher, error) {
	if p.Length < MinLength || p.Length > MaxLength {
		return nil, apperr.New(apperr.KindInvalidInput, "voucher length must be between 4 and 24")
	}
	if p.DurationMinutes <= 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "voucher duration must be positive")
	}

	now := time.Now().UTC()
	v := &Voucher{
		DurationMinutes: p.DurationMinutes,
		ExpiresUTC:      now.Add(time.Duration(p.DurationMinutes) * time.Minute),
		UpKbps:          p.UpKbps,
		DownKbps:        p.DownKbps,
		Status:          StatusUnused,
		BookingRef:      p.BookingRef,
	}

	for attempt := 0; attempt <= len(collisionBackoff); attempt++ {
		v.Code = generateCode(p.Length)

		created, err := s.store.Create(ctx, v)
		if err == nil {
			return created, nil
		}
		if !IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindInternal, "creating voucher", err)
		}
		telemetry.VoucherCollisionsTotal.Inc()
		if attempt == len(collisionBackoff) {
			break
		}
		select {
		case <-time.After(collisionBackoff[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, apperr.Wrap(apperr.KindConflict, "voucher code generation exhausted its retry budget", CollisionError{})
}

// Redeem implements spec §4.C redeem(code, mac, now): case-insensitive
// lookup, status/expiry checks, at-most-one-grant-per-(code,mac)
// serialization, voucher bookkeeping, and controller authorize enqueue.
func (s *Service) Redeem(ctx context.Context, code, mac, userInputCode string, now time.Time) (*grant.Grant, error) {
	lockKey := "voucher:redeem:" + normalizeCode(code) + ":" + mac
	unlock := s.acquireLock(ctx, lockKey)
	defer unlock()

	var created *grant.Grant
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		vstore := NewStore(tx)
		gstore := grant.NewStore(tx)

		v, err := vstore.FindByCodeCI(ctx, code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.New(apperr.KindNotFound, "voucher not found")
			}
			return apperr.Wrap(apperr.KindInternal, "looking up voucher", err)
		}

		if v.Status == StatusRevoked {
			return apperr.New(apperr.KindRevoked, "voucher has been revoked")
		}
		if v.IsExpired(now) {
			return apperr.New(apperr.KindExpired, "voucher has expired")
		}

		existing, err := gstore.FindActiveByMACAndIdentifier(ctx, mac, v.Code)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return apperr.Wrap(apperr.KindInternal, "checking for an existing grant", err)
		}
		if existing != nil {
			return apperr.New(apperr.KindDuplicateRedemption, "a grant already exists for this device and code")
		}

		start := grant.FloorMinute(now)
		end := grant.CeilMinute(now.Add(time.Duration(v.DurationMinutes) * time.Minute))

		voucherCode := v.Code
		g := &grant.Grant{
			ID:            newGrantID(),
			VoucherCode:   &voucherCode,
			UserInputCode: &userInputCode,
			MAC:           mac,
			StartUTC:      start,
			EndUTC:        end,
			Status:        grant.StatusPending,
		}

		created, err = gstore.Create(ctx, g)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "creating grant", err)
		}

		if _, err := vstore.MarkRedeemed(ctx, v.Code); err != nil {
			return apperr.Wrap(apperr.KindInternal, "updating voucher redemption count", err)
		}

		if s.queue != nil {
			if err := s.queue.EnqueueAuthorize(ctx, tx, created.ID, created.MAC, created.EndUTC); err != nil {
				return apperr.Wrap(apperr.KindControllerUnavailable, "enqueueing controller authorize", err)
			}
		}

		return nil
	})
	if err != nil {
		telemetry.VoucherRedemptionsTotal.WithLabelValues(redemptionOutcome(err)).Inc()
		return nil, err
	}

	telemetry.VoucherRedemptionsTotal.WithLabelValues("success").Inc()
	return created, nil
}

// redemptionOutcome maps a Redeem failure to a low-cardinality metric label.
func redemptionOutcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindRevoked:
		return "revoked"
	case apperr.KindExpired:
		return "expired"
	case apperr.KindDuplicateRedemption:
		return "duplicate"
	default:
		return "error"
	}
}

// Get returns a voucher by code.
func (s *Service) Get(ctx context.Context, code string) (*Voucher, error) {
	v, err := s.store.FindByCodeCI(ctx, code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "voucher not found")
	}
	return v, err
}

// List returns vouchers, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Voucher, error) {
	return s.store.List(ctx, limit, offset)
}

func newGrantID() uuid.UUID { return uuid.New() }

// acquireLock takes a best-effort distributed lock on key via SetNX. A
// caller that does not obtain the lock proceeds without it, so the lock
// never blocks or short-circuits a redemption. It is not the correctness
// mechanism: the
// transactional duplicate-grant check in Redeem is what actually guarantees
// "at most one grant" under spec §5, so a nil redis client (or a lock that
// fails to acquire) only costs extra transaction retries, never correctness.
func (s *Service) acquireLock(ctx context.Context, key string) (unlock func()) {
	if s.redis == nil {
		return func() {}
	}

	const lockTTL = 5 * time.Second
	ok, err := s.redis.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil || !ok {
		return func() {}
	}
	return func() {
		s.redis.Del(context.Background(), key)
	}
}

func normalizeCode(code string) string {
	out := make([]byte, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
