package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a new token row.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (id, user_id, lookup_key, user_agent, ip_address, expires_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`
	return r.db.Pool.QueryRow(ctx, q,
		t.ID, t.UserID, t.LookupKey, t.UserAgent, t.IPAddress, t.ExpiresAt, t.Status).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetByLookupKey selects a token by lookup key regardless of status.
func (r *TokenRepo) GetByLookupKey(ctx context.Context, key string) (*model.RefreshToken, error) {
	const q = `
SELECT id, user_id, lookup_key, user_agent, ip_address, expires_at, revoked_at, status, created_at, updated_at
FROM refresh_tokens WHERE lookup_key=$1`
	row := r.db.Pool.QueryRow(ctx, q, key)
	var t model.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.LookupKey, &t.UserAgent, &t.IPAddress,
		&t.ExpiresAt, &t.RevokedAt, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

// Revoke marks a single token revoked. The revoked_at guard makes the call
// idempotent: a second revocation affects no rows and reports false.
func (r *TokenRepo) Revoke(ctx context.Context, key string) (bool, error) {
	const q = `
UPDATE refresh_tokens
SET status=$2, revoked_at=now(), updated_at=now()
WHERE lookup_key=$1 AND revoked_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, key, model.TokenRevoked)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every un-revoked token owned by the user. A single
// UPDATE gives time-of-call semantics: rows inserted after the statement's
// snapshot are not touched, and the statement commits atomically.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `
UPDATE refresh_tokens
SET status=$2, revoked_at=now(), updated_at=now()
WHERE user_id=$1 AND revoked_at IS NULL`
	_, err := r.db.Pool.Exec(ctx, q, userID, model.TokenRevoked)
	return err
}
