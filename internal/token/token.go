// Package token issues and verifies signed access tokens.
package token

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marginalia-app/marginalia/internal/model"
)

// clock skew tolerated when validating expiry.
const leeway = 30 * time.Second

// Claims are the validated contents of an access token.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   model.Role
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Manager signs and parses HS256 access tokens. Stateless: tokens are never
// stored server-side.
type Manager struct {
	signKey []byte
	ttl     time.Duration
}

// NewManager constructs a Manager with the given signing key and token TTL.
func NewManager(signKey []byte, ttl time.Duration) *Manager {
	return &Manager{signKey: signKey, ttl: ttl}
}

// TTL returns the configured access token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a signed access token embedding the user's id, email and role.
func (m *Manager) Issue(u *model.User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.Email,
		Role:  string(u.Role),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.signKey)
	return signed, exp, err
}

// Parse validates signature and expiry and returns the embedded claims.
func (m *Manager) Parse(raw string) (Claims, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.signKey, nil
	}, jwt.WithLeeway(leeway))
	if err != nil || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Claims{}, errors.New("bad subject")
	}
	return Claims{UserID: id, Email: claims.Email, Role: model.Role(claims.Role)}, nil
}
