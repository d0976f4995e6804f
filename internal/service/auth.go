package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/marginalia-app/marginalia/internal/crypto"
	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/limiter"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/repository"
	"github.com/marginalia-app/marginalia/internal/token"
)

// minimum strength score accepted at registration and password change.
const minPasswordScore = 60

// AuthService defines credential authentication and account operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, email, password, displayName string) (*model.User, error)
	// Login authenticates by email/password and issues an access and a
	// refresh token. Rate-limited by (email, ip).
	Login(ctx context.Context, email, password string, prov Provenance) (model.Tokens, *model.User, error)
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// UpdateProfile changes the display name.
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) (*model.User, error)
	// ChangePassword verifies the current password, stores the new hash and
	// revokes every existing session.
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error
	// DeleteAccount revokes all sessions and removes the user.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

type AuthServiceImpl struct {
	users          repository.UserRepository
	hasher         *pkgcrypto.Hasher
	access         *token.Manager
	sessions       SessionService
	lim            limiter.Limiter
	blockedDomains map[string]struct{}
}

// NewAuthService constructs AuthService with required dependencies.
// blockedDomains is the disposable email domain denylist, matched against
// the normalized address.
func NewAuthService(users repository.UserRepository, hasher *pkgcrypto.Hasher, access *token.Manager, sessions SessionService, lim limiter.Limiter, blockedDomains []string) *AuthServiceImpl {
	blocked := make(map[string]struct{}, len(blockedDomains))
	for _, d := range blockedDomains {
		blocked[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &AuthServiceImpl{
		users:          users,
		hasher:         hasher,
		access:         access,
		sessions:       sessions,
		lim:            lim,
		blockedDomains: blocked,
	}
}

// NormalizeEmail lowercases and trims an address. Uniqueness and lookups
// always operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register validates the email and password policy and persists a new user.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if pkgcrypto.Score(password) < minPasswordScore {
		return nil, errs.ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         model.RoleUser,
	}
	// The unique index backs the duplicate check, so no row survives a
	// failed registration.
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthServiceImpl) validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errs.ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return errs.ErrInvalidEmail
	}
	if _, blocked := s.blockedDomains[email[at+1:]]; blocked {
		return errs.ErrInvalidEmail
	}
	return nil
}

// Login authenticates with rate limiting by (email, ip). An unknown email
// and a wrong password are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string, prov Provenance) (model.Tokens, *model.User, error) {
	email = NormalizeEmail(email)
	ipHash := limiter.HashIP(prov.IP)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !allowed {
		return model.Tokens{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || !s.hasher.Verify(password, u.PasswordHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, nil, errs.ErrRateLimited
		}
		// lookup errors and verification failures share one outcome
		return model.Tokens{}, nil, errs.ErrInvalidCredentials
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.access.Issue(u)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	refresh, _, err := s.sessions.Issue(ctx, u.ID, prov)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, u, nil
}

// GetByID loads a user by ID.
func (s *AuthServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes the display name.
func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) (*model.User, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, errors.New("empty display name")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword re-verifies the current password, enforces the strength
// policy on the replacement, and invalidates every existing session.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return errs.ErrInvalidCredentials
	}
	if pkgcrypto.Score(next) < minPasswordScore {
		return errs.ErrWeakPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, id)
}

// DeleteAccount revokes all sessions, then removes the row.
func (s *AuthServiceImpl) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.sessions.RevokeAll(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
