// Package service contains application services for credentials and sessions.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/marginalia-app/marginalia/internal/crypto"
	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/repository"
	"github.com/marginalia-app/marginalia/internal/token"
)

// refresh token plaintext size in bytes before hex encoding.
const refreshTokenBytes = 32

// Provenance records where a session was established from.
type Provenance struct {
	UserAgent string
	IP        string
}

// SessionService is the refresh token state machine: issue, verify, revoke,
// rotate. The plaintext is returned once at issuance and never stored; rows
// are found through a deterministic lookup key.
type SessionService interface {
	// Issue creates and persists a new active token for the user.
	Issue(ctx context.Context, userID uuid.UUID, prov Provenance) (plaintext string, rec *model.RefreshToken, err error)
	// Verify resolves a plaintext to its record. Not-found, revoked and
	// expired all collapse to errs.ErrUnauthenticated.
	Verify(ctx context.Context, plaintext string) (*model.RefreshToken, error)
	// Revoke invalidates one token. Reports false when nothing transitioned.
	Revoke(ctx context.Context, plaintext string) (bool, error)
	// RevokeAll invalidates every token the user holds at call time.
	RevokeAll(ctx context.Context, userID uuid.UUID) error
	// Rotate exchanges a valid refresh token for a fresh access/refresh pair.
	// The presented token is single-use: it is revoked before reissue.
	Rotate(ctx context.Context, plaintext string) (model.Tokens, *model.User, error)
}

type SessionServiceImpl struct {
	tokens     repository.TokenRepository
	users      repository.UserRepository
	access     *token.Manager
	refreshTTL time.Duration
}

// NewSessionService constructs SessionService with required dependencies.
func NewSessionService(tokens repository.TokenRepository, users repository.UserRepository, access *token.Manager, refreshTTL time.Duration) *SessionServiceImpl {
	return &SessionServiceImpl{tokens: tokens, users: users, access: access, refreshTTL: refreshTTL}
}

// RefreshTTL returns the configured refresh token lifetime. The cookie layer
// reuses it so the store row and the cookie expire together.
func (s *SessionServiceImpl) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue generates a random plaintext, persists its lookup key and returns both.
func (s *SessionServiceImpl) Issue(ctx context.Context, userID uuid.UUID, prov Provenance) (string, *model.RefreshToken, error) {
	plaintext, err := pkgcrypto.RandomToken(refreshTokenBytes)
	if err != nil {
		return "", nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, err
	}
	rec := &model.RefreshToken{
		ID:        id,
		UserID:    userID,
		LookupKey: pkgcrypto.LookupKey(plaintext),
		UserAgent: prov.UserAgent,
		IPAddress: prov.IP,
		ExpiresAt: time.Now().Add(s.refreshTTL),
		Status:    model.TokenActive,
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return plaintext, rec, nil
}

// Verify loads the record behind a plaintext and checks status and expiry.
// The caller learns only pass/fail; which check rejected is not surfaced.
func (s *SessionServiceImpl) Verify(ctx context.Context, plaintext string) (*model.RefreshToken, error) {
	rec, err := s.tokens.GetByLookupKey(ctx, pkgcrypto.LookupKey(plaintext))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}
	if !rec.Valid(time.Now()) {
		return nil, errs.ErrUnauthenticated
	}
	return rec, nil
}

// Revoke marks the token revoked whatever its current status. Revoking an
// already-revoked token is a no-op reporting false.
func (s *SessionServiceImpl) Revoke(ctx context.Context, plaintext string) (bool, error) {
	return s.tokens.Revoke(ctx, pkgcrypto.LookupKey(plaintext))
}

// RevokeAll invalidates every token the user held when the call started.
// Used on password change and account deletion.
func (s *SessionServiceImpl) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// Rotate verifies the presented token, revokes it, and issues a new pair for
// the same user. When two rotations race on one token, the revocation guard
// lets only the first one through.
func (s *SessionServiceImpl) Rotate(ctx context.Context, plaintext string) (model.Tokens, *model.User, error) {
	rec, err := s.Verify(ctx, plaintext)
	if err != nil {
		return model.Tokens{}, nil, err
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return model.Tokens{}, nil, errs.ErrUnauthenticated
	}

	revoked, err := s.Revoke(ctx, plaintext)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !revoked {
		// Lost the race against another rotation or a revocation.
		return model.Tokens{}, nil, errs.ErrUnauthenticated
	}

	next, _, err := s.Issue(ctx, u.ID, Provenance{UserAgent: rec.UserAgent, IP: rec.IPAddress})
	if err != nil {
		return model.Tokens{}, nil, err
	}
	access, exp, err := s.access.Issue(u)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: next, ExpiresAt: exp}, u, nil
}
