package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// ShareRepo implements repository.ShareRepository.
type ShareRepo struct{ s *Store }

func copyShare(sh *model.Share) model.Share {
	cp := *sh
	if sh.RecipientEmail != nil {
		e := *sh.RecipientEmail
		cp.RecipientEmail = &e
	}
	if sh.ShareToken != nil {
		t := *sh.ShareToken
		cp.ShareToken = &t
	}
	return cp
}

// Create inserts a pending share. Tokens are unique.
func (r *ShareRepo) Create(_ context.Context, sh *model.Share) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.shares[sh.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if sh.ShareToken != nil {
		for _, x := range r.s.shares {
			if x.ShareToken != nil && *x.ShareToken == *sh.ShareToken {
				return errs.ErrAlreadyExists
			}
		}
	}
	now := r.s.now()
	sh.CreatedAt, sh.UpdatedAt = now, now
	cp := copyShare(sh)
	r.s.shares[sh.ID] = &cp
	return nil
}

// Get implements repository.ShareRepository.
func (r *ShareRepo) Get(_ context.Context, id uuid.UUID) (*model.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shares[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := copyShare(sh)
	return &cp, nil
}

// GetByToken implements repository.ShareRepository.
func (r *ShareRepo) GetByToken(_ context.Context, token string) (*model.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sh := range r.s.shares {
		if sh.ShareToken != nil && *sh.ShareToken == token {
			cp := copyShare(sh)
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *ShareRepo) collect(keep func(*model.Share) bool) []model.Share {
	var out []model.Share
	for _, sh := range r.s.shares {
		if keep(sh) {
			out = append(out, copyShare(sh))
		}
	}
	slices.SortStableFunc(out, func(a, b model.Share) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// ListByNote implements repository.ShareRepository.
func (r *ShareRepo) ListByNote(_ context.Context, noteID uuid.UUID) ([]model.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(sh *model.Share) bool { return sh.NoteID == noteID }), nil
}

// ListByOwner implements repository.ShareRepository.
func (r *ShareRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Share, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(sh *model.Share) bool {
		n, ok := r.s.notes[sh.NoteID]
		return ok && n.OwnerID == ownerID && !sh.IsRevoked
	}), nil
}

// ListPending implements repository.ShareRepository.
func (r *ShareRepo) ListPending(_ context.Context, userID uuid.UUID, email string) ([]model.PendingShare, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.PendingShare
	for _, sh := range r.s.shares {
		if sh.State() != model.SharePending {
			continue
		}
		mine := (sh.RecipientUserID.Valid && sh.RecipientUserID.UUID == userID) ||
			(!sh.RecipientUserID.Valid && emailEq(sh.RecipientEmail, email))
		if !mine {
			continue
		}
		n, ok := r.s.notes[sh.NoteID]
		if !ok {
			continue
		}
		p := model.PendingShare{
			Note:       *n,
			ShareID:    sh.ID,
			Permission: sh.Permission,
			CreatedAt:  sh.CreatedAt,
		}
		if sh.ShareToken != nil {
			t := *sh.ShareToken
			p.ShareToken = &t
		}
		if owner, ok := r.s.users[n.OwnerID]; ok {
			p.SharedBy = owner.Name
		}
		out = append(out, p)
	}
	sortByUpdatedDesc(out, func(p model.PendingShare) time.Time { return p.CreatedAt })
	return out, nil
}

// Accept implements repository.ShareRepository.
func (r *ShareRepo) Accept(_ context.Context, id, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shares[id]
	if !ok || sh.State() != model.SharePending {
		return errs.ErrVersionConflict
	}
	sh.IsAccepted = true
	sh.RecipientUserID = uuid.NullUUID{UUID: userID, Valid: true}
	sh.UpdatedAt = r.s.now()
	return nil
}

// Revoke implements repository.ShareRepository.
func (r *ShareRepo) Revoke(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shares[id]
	if !ok || sh.IsRevoked {
		return false, nil
	}
	sh.IsRevoked = true
	sh.UpdatedAt = r.s.now()
	return true, nil
}

// BindEmail implements repository.ShareRepository.
func (r *ShareRepo) BindEmail(_ context.Context, email string, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sh := range r.s.shares {
		if !sh.RecipientUserID.Valid && !sh.IsRevoked && emailEq(sh.RecipientEmail, email) {
			sh.RecipientUserID = uuid.NullUUID{UUID: userID, Valid: true}
			sh.UpdatedAt = r.s.now()
			n++
		}
	}
	return n, nil
}
