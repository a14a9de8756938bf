package voucher

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// Store provides database operations for vouchers.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a voucher Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const voucherColumns = `code, created_utc, duration_minutes, expires_utc, up_kbps, down_kbps,
	status, booking_ref, redeemed_count, last_redeemed_utc`

func scanVoucher(row pgx.Row) (*Voucher, error) {
	var v Voucher
	if err := row.Scan(
		&v.Code, &v.CreatedUTC, &v.DurationMinutes, &v.ExpiresUTC, &v.UpKbps, &v.DownKbps,
		&v.Status, &v.BookingRef, &v.RedeemedCount, &v.LastRedeemedUTC,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVouchers(rows pgx.Rows) ([]*Voucher, error) {
	defer rows.Close()
	var out []*Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning voucher row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FindByCodeCI looks up a voucher by code, case-insensitively (spec §4.A:
// Voucher.find_by_code_ci).
func (s *Store) FindByCodeCI(ctx context.Context, code string) (*Voucher, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE upper(code) = upper($1)`, code)
	return scanVoucher(row)
}

// Create inserts a new voucher. Callers retry on a unique-violation against
// the code column (spec §4.C collision retry).
func (s *Store) Create(ctx context.Context, v *Voucher) (*Voucher, error) {
	row := s.dbtx.QueryRow(ctx, `INSERT INTO vouchers (
		code, created_utc, duration_minutes, expires_utc, up_kbps, down_kbps,
		status, booking_ref, redeemed_count, last_redeemed_utc
	) VALUES ($1, now(), $2, $3, $4, $5, $6, $7, 0, NULL)
	RETURNING `+voucherColumns,
		v.Code, v.DurationMinutes, v.ExpiresUTC, v.UpKbps, v.DownKbps, v.Status, v.BookingRef,
	)
	return scanVoucher(row)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the trigger for voucher code collision retry.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

// MarkRedeemed increments redeemed_count, sets last_redeemed_utc, and
// transitions UNUSED to ACTIVE (spec §4.C).
func (s *Store) MarkRedeemed(ctx context.Context, code string) (*Voucher, error) {
	row := s.dbtx.QueryRow(ctx, `UPDATE vouchers
		SET redeemed_count = redeemed_count + 1,
		    last_redeemed_utc = now(),
		    status = CASE WHEN status = $2 THEN $3 ELSE status END
		WHERE upper(code) = upper($1)
		RETURNING `+voucherColumns,
		code, StatusUnused, StatusActive,
	)
	return scanVoucher(row)
}

// List returns vouchers, newest first, with offset pagination.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Voucher, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers
		ORDER BY created_utc DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vouchers: %w", err)
	}
	return scanVouchers(rows)
}
