package grant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// Store provides database operations for access grants.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a grant Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const grantColumns = `id, voucher_code, booking_ref, integration_id, user_input_code, mac,
	session_token, start_utc, end_utc, controller_grant_id, status, created_utc, updated_utc`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	if err := row.Scan(
		&g.ID, &g.VoucherCode, &g.BookingRef, &g.IntegrationID, &g.UserInputCode, &g.MAC,
		&g.SessionToken, &g.StartUTC, &g.EndUTC, &g.ControllerGrantID, &g.Status, &g.CreatedUTC, &g.UpdatedUTC,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanGrants(rows pgx.Rows) ([]*Grant, error) {
	defer rows.Close()
	var out []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Get returns a single grant by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Grant, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE id = $1`, id)
	return scanGrant(row)
}

// FindActiveByMACAndIdentifier returns the non-revoked grant for the given
// mac and voucher-code-or-booking-ref, if one exists. Backs the spec §3
// invariant "at most one non-REVOKED grant exists simultaneously" for a
// given (mac, identifier).
func (s *Store) FindActiveByMACAndIdentifier(ctx context.Context, mac, identifier string) (*Grant, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+grantColumns+` FROM access_grants
		WHERE mac = $1
		  AND (voucher_code = $2 OR booking_ref = $2)
		  AND status != $3
		ORDER BY created_utc DESC
		LIMIT 1`,
		mac, identifier, StatusRevoked,
	)
	return scanGrant(row)
}

// Create inserts a new PENDING grant with minute-rounded start/end.
func (s *Store) Create(ctx context.Context, g *Grant) (*Grant, error) {
	row := s.dbtx.QueryRow(ctx, `INSERT INTO access_grants (
		id, voucher_code, booking_ref, integration_id, user_input_code, mac,
		session_token, start_utc, end_utc, controller_grant_id, status, created_utc, updated_utc
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
	RETURNING `+grantColumns,
		g.ID, g.VoucherCode, g.BookingRef, g.IntegrationID, g.UserInputCode, g.MAC,
		g.SessionToken, g.StartUTC, g.EndUTC, g.ControllerGrantID, g.Status,
	)
	return scanGrant(row)
}

// UpdateStatusAndEnd updates a grant's status and end time, bumping
// updated_utc. Used by extend/revoke/expire-sweep.
func (s *Store) UpdateStatusAndEnd(ctx context.Context, id uuid.UUID, status string, endUTC interface{}) (*Grant, error) {
	row := s.dbtx.QueryRow(ctx, `UPDATE access_grants
		SET status = $2, end_utc = COALESCE($3, end_utc), updated_utc = now()
		WHERE id = $1
		RETURNING `+grantColumns,
		id, status, endUTC,
	)
	return scanGrant(row)
}

// UpdateMAC records a MAC address reconciled after session-token fallback
// creation (spec §4.I.5).
func (s *Store) UpdateMAC(ctx context.Context, id uuid.UUID, mac string) (*Grant, error) {
	row := s.dbtx.QueryRow(ctx, `UPDATE access_grants
		SET mac = $2, updated_utc = now()
		WHERE id = $1
		RETURNING `+grantColumns,
		id, mac,
	)
	return scanGrant(row)
}

// SetControllerGrantID records the controller's grant id after a
// successful authorize call.
func (s *Store) SetControllerGrantID(ctx context.Context, id uuid.UUID, controllerGrantID string) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE access_grants SET controller_grant_id = $2, updated_utc = now() WHERE id = $1`, id, controllerGrantID)
	return err
}

// SweepExpired transitions ACTIVE grants whose end_utc has passed to
// EXPIRED and returns how many were updated (spec §4.D expire_sweep).
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := s.dbtx.Exec(ctx, `UPDATE access_grants
		SET status = $1, updated_utc = now()
		WHERE status = $2 AND end_utc <= now()`,
		StatusExpired, StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByStatus returns grants in the given status, newest first, with
// offset pagination.
func (s *Store) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Grant, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+grantColumns+` FROM access_grants
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_utc DESC LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return scanGrants(rows)
}
