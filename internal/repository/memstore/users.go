package memstore

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// UserRepo implements repository.UserRepository.
type UserRepo struct{ s *Store }

// Create inserts a user, rejecting taken emails and provider identities.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if strings.EqualFold(x.Email, u.Email) || x.ID == u.ID {
			return errs.ErrAlreadyExists
		}
		if u.ProviderID != "" && x.Provider == u.Provider && x.ProviderID == u.ProviderID {
			return errs.ErrAlreadyExists
		}
	}
	cp := *u
	cp.CreatedAt = r.s.now()
	u.CreatedAt = cp.CreatedAt
	r.s.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) find(match func(*model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetByID implements repository.UserRepository.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

// GetByEmail implements repository.UserRepository.
func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

// GetByProvider implements repository.UserRepository.
func (r *UserRepo) GetByProvider(_ context.Context, p model.Provider, providerID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Provider == p && u.ProviderID == providerID })
}

// LinkProvider implements repository.UserRepository.
func (r *UserRepo) LinkProvider(_ context.Context, id uuid.UUID, p model.Provider, providerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	for _, x := range r.s.users {
		if x.ID != id && x.Provider == p && x.ProviderID == providerID {
			return errs.ErrAlreadyExists
		}
	}
	u.Provider, u.ProviderID = p, providerID
	return nil
}
