package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// Store provides database operations for rental events and integration configs.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a reservation Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const eventColumns = `integration_id, event_index, slot_name, slot_code, last_four,
	start_utc, end_utc, raw_attributes, created_utc, updated_utc`

func scanEvent(row pgx.Row) (*RentalEvent, error) {
	var e RentalEvent
	if err := row.Scan(
		&e.IntegrationID, &e.EventIndex, &e.SlotName, &e.SlotCode, &e.LastFour,
		&e.StartUTC, &e.EndUTC, &e.RawAttributes, &e.CreatedUTC, &e.UpdatedUTC,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEvents(rows pgx.Rows) ([]*RentalEvent, error) {
	defer rows.Close()
	var out []*RentalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rental event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEvent inserts or updates a rental event keyed by (integration_id,
// event_index), per spec §4.E's "upsert by (integration_id, event_index)".
func (s *Store) UpsertEvent(ctx context.Context, e *RentalEvent) error {
	_, err := s.dbtx.Exec(ctx, `INSERT INTO rental_events (
		integration_id, event_index, slot_name, slot_code, last_four,
		start_utc, end_utc, raw_attributes, created_utc, updated_utc
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	ON CONFLICT (integration_id, event_index) DO UPDATE SET
		slot_name = EXCLUDED.slot_name,
		slot_code = EXCLUDED.slot_code,
		last_four = EXCLUDED.last_four,
		start_utc = EXCLUDED.start_utc,
		end_utc = EXCLUDED.end_utc,
		raw_attributes = EXCLUDED.raw_attributes,
		updated_utc = now()`,
		e.IntegrationID, e.EventIndex, e.SlotName, e.SlotCode, e.LastFour,
		e.StartUTC, e.EndUTC, e.RawAttributes,
	)
	if err != nil {
		return fmt.Errorf("upserting rental event: %w", err)
	}
	return nil
}

// EventsByIntegration returns all cached events for an integration, ordered
// by event_index.
func (s *Store) EventsByIntegration(ctx context.Context, integrationID string) ([]*RentalEvent, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+eventColumns+` FROM rental_events
		WHERE integration_id = $1 ORDER BY event_index ASC`,
		integrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing rental events: %w", err)
	}
	return scanEvents(rows)
}

// DeleteWhereEndBefore deletes events whose end_utc precedes cutoff (spec
// §4.A: RentalEvent.delete_where_end_before(t)). Returns the row count
// deleted, for the retention sweep's audit entry.
func (s *Store) DeleteWhereEndBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM rental_events WHERE end_utc < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired rental events: %w", err)
	}
	return tag.RowsAffected(), nil
}

const integrationColumns = `integration_id, enabled, auth_attribute, checkout_grace_minutes,
	last_sync_utc, stale_count, consecutive_errors`

func scanIntegration(row pgx.Row) (*IntegrationConfig, error) {
	var c IntegrationConfig
	if err := row.Scan(
		&c.IntegrationID, &c.Enabled, &c.AuthAttribute, &c.CheckoutGraceMinutes,
		&c.LastSyncUTC, &c.StaleCount, &c.ConsecutiveErrors,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanIntegrations(rows pgx.Rows) ([]*IntegrationConfig, error) {
	defer rows.Close()
	var out []*IntegrationConfig
	for rows.Next() {
		c, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning integration config row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnabledIntegrations returns every integration with enabled = true.
func (s *Store) EnabledIntegrations(ctx context.Context) ([]*IntegrationConfig, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+integrationColumns+` FROM integration_configs WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("listing enabled integrations: %w", err)
	}
	return scanIntegrations(rows)
}

// Integration returns a single integration config.
func (s *Store) Integration(ctx context.Context, integrationID string) (*IntegrationConfig, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+integrationColumns+` FROM integration_configs WHERE integration_id = $1`, integrationID)
	return scanIntegration(row)
}

// ListIntegrations returns all configured integrations.
func (s *Store) ListIntegrations(ctx context.Context) ([]*IntegrationConfig, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+integrationColumns+` FROM integration_configs ORDER BY integration_id`)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	return scanIntegrations(rows)
}

// UpsertIntegration inserts or updates an integration config.
func (s *Store) UpsertIntegration(ctx context.Context, c *IntegrationConfig) error {
	_, err := s.dbtx.Exec(ctx, `INSERT INTO integration_configs (
		integration_id, enabled, auth_attribute, checkout_grace_minutes, last_sync_utc, stale_count, consecutive_errors
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (integration_id) DO UPDATE SET
		enabled = EXCLUDED.enabled,
		auth_attribute = EXCLUDED.auth_attribute,
		checkout_grace_minutes = EXCLUDED.checkout_grace_minutes`,
		c.IntegrationID, c.Enabled, c.AuthAttribute, c.CheckoutGraceMinutes,
		c.LastSyncUTC, c.StaleCount, c.ConsecutiveErrors,
	)
	if err != nil {
		return fmt.Errorf("upserting integration config: %w", err)
	}
	return nil
}

// RecordPollSuccess resets consecutive_errors and stale_count, and bumps
// last_sync_utc (spec §4.E: "on success, reset and resume the normal cadence").
func (s *Store) RecordPollSuccess(ctx context.Context, integrationID string) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE integration_configs
		SET consecutive_errors = 0, stale_count = 0, last_sync_utc = now()
		WHERE integration_id = $1`,
		integrationID,
	)
	return err
}

// RecordPollError increments consecutive_errors and stale_count.
func (s *Store) RecordPollError(ctx context.Context, integrationID string) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE integration_configs
		SET consecutive_errors = consecutive_errors + 1, stale_count = stale_count + 1
		WHERE integration_id = $1`,
		integrationID,
	)
	return err
}

// DeleteIntegration removes an integration config and its cached events.
func (s *Store) DeleteIntegration(ctx context.Context, integrationID string) (bool, error) {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM integration_configs WHERE integration_id = $1`, integrationID)
	if err != nil {
		return false, fmt.Errorf("deleting integration config: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
