// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken indicates the normalized email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidEmail indicates a malformed or denylisted registration email.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrWeakPassword indicates the password scored below the strength threshold.
	ErrWeakPassword = errors.New("password too weak")

	// ErrInvalidCredentials indicates a failed email/password login.
	// Unknown email and wrong password both map here so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated indicates a missing, malformed, expired or revoked credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
