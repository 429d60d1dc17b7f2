package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/access"
	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/repository"
)

// AccessChecker answers permission questions from storage. The note service
// and the realtime hub share it.
type AccessChecker struct {
	notes  repository.NoteRepository
	shares repository.ShareRepository
}

// NewAccessChecker constructs an AccessChecker.
func NewAccessChecker(notes repository.NoteRepository, shares repository.ShareRepository) *AccessChecker {
	return &AccessChecker{notes: notes, shares: shares}
}

// Access implements realtime.AccessChecker.
func (c *AccessChecker) Access(ctx context.Context, noteID, userID uuid.UUID) (model.Access, error) {
	_, acc, err := c.resolve(ctx, noteID, userID)
	return acc, err
}

func (c *AccessChecker) resolve(ctx context.Context, noteID, userID uuid.UUID) (*model.Note, model.Access, error) {
	n, err := c.notes.Get(ctx, noteID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, model.NoAccess, errs.NotFound("note not found")
		}
		return nil, model.NoAccess, err
	}
	var shares []model.Share
	if n.OwnerID != userID {
		if shares, err = c.shares.ListByNote(ctx, noteID); err != nil {
			return nil, model.NoAccess, err
		}
	}
	acc := access.ForNote(n, shares, userID)
	if !acc.CanRead() {
		return nil, model.NoAccess, errs.Forbidden("you do not have access to this note")
	}
	return n, acc, nil
}
