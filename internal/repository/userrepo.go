// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/model"
)

// UserRepository provides access to accounts.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists on a taken email.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by (lower-cased) email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByProvider loads a user by external provider identity.
	GetByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.User, error)
	// LinkProvider attaches an external identity to an existing account.
	LinkProvider(ctx context.Context, id uuid.UUID, provider model.Provider, providerID string) error
}
