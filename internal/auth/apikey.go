package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tykeal/homeassistant-captive-portal/internal/db"
)

// APIKeyAuthenticator validates API keys against the api_keys table.
type APIKeyAuthenticator struct {
	DB db.DBTX
}

// APIKeyResult holds the resolved identity data from an API key lookup.
type APIKeyResult struct {
	APIKeyID  uuid.UUID
	KeyPrefix string
	Role      string
}

// Authenticate hashes the raw key, looks it up, and validates expiration.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*APIKeyResult, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	var (
		id        uuid.UUID
		keyPrefix string
		role      string
		expiresAt *time.Time
	)
	row := a.DB.QueryRow(ctx,
		`SELECT id, key_prefix, role, expires_at FROM api_keys WHERE key_hash = $1`,
		hash,
	)
	if err := row.Scan(&id, &keyPrefix, &role, &expiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("invalid API key")
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", expiresAt)
	}

	go func() {
		_, _ = a.DB.Exec(context.Background(), `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	}()

	if !IsValidRole(role) {
		role = RoleViewer
	}

	return &APIKeyResult{
		APIKeyID:  id,
		KeyPrefix: keyPrefix,
		Role:      role,
	}, nil
}
