// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role enumerates account privilege levels.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// TokenStatus enumerates refresh token lifecycle states.
type TokenStatus string

// Refresh token states. Expired is observed lazily from ExpiresAt at
// verification time; rows are not swept proactively.
const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
	TokenExpired TokenStatus = "expired"
)

// Tokens collects credentials issued on login or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string    // plaintext, shown once, never stored
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// User represents an account. The password hash never leaves the service layer.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"` // unique, stored lowercase/trimmed
	PasswordHash string     `json:"-"`
	DisplayName  string     `json:"displayName"`
	Role         Role       `json:"role"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// RefreshToken is one logged-in device/session. Only the deterministic
// lookup key of the plaintext is persisted.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	LookupKey string
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	RevokedAt *time.Time
	Status    TokenStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid reports whether the token is usable at the given instant.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.Status == TokenActive && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
