// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/marginalia-app/marginalia/internal/model"
)

// UserRepository provides CRUD access for user accounts.
type UserRepository interface {
	// Create inserts a new user. A duplicate email maps to errs.ErrEmailTaken.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update persists mutable fields (display name, password hash, verified_at).
	Update(ctx context.Context, u *model.User) error
	// Delete removes the user row.
	Delete(ctx context.Context, id uuid.UUID) error
}
