package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/marginalia-app/marginalia/internal/model"
)

// TokenRepository persists refresh token records keyed by their lookup key.
type TokenRepository interface {
	// Create inserts a new active token row.
	Create(ctx context.Context, t *model.RefreshToken) error
	// GetByLookupKey loads a token regardless of status. Status and expiry
	// checks are the caller's concern.
	GetByLookupKey(ctx context.Context, key string) (*model.RefreshToken, error)
	// Revoke marks the token revoked. Reports true only when an un-revoked
	// row was transitioned, so a second call is a no-op returning false.
	Revoke(ctx context.Context, key string) (bool, error)
	// RevokeAllForUser revokes every un-revoked token the user owns in a
	// single statement (time-of-call semantics: tokens issued concurrently
	// after the statement snapshot are untouched).
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}
