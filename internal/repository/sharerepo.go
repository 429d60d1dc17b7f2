package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/model"
)

// ShareRepository stores access grants. Accept and Revoke are conditional
// updates so the accepted/revoked flags only ever move forward.
type ShareRepository interface {
	Create(ctx context.Context, s *model.Share) error
	Get(ctx context.Context, id uuid.UUID) (*model.Share, error)
	GetByToken(ctx context.Context, token string) (*model.Share, error)
	// ListByNote returns every share of a note, revoked ones included.
	ListByNote(ctx context.Context, noteID uuid.UUID) ([]model.Share, error)
	// ListByOwner returns non-revoked shares of notes owned by ownerID.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Share, error)
	// ListPending returns open invitations addressed to userID, either bound
	// to the id or addressed to email and not yet bound.
	ListPending(ctx context.Context, userID uuid.UUID, email string) ([]model.PendingShare, error)
	// Accept binds the recipient and marks the share accepted. Returns
	// errs.ErrVersionConflict when the share is no longer pending.
	Accept(ctx context.Context, id, userID uuid.UUID) error
	// Revoke sets the revoked flag. Reports false when it was already set.
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
	// BindEmail binds pending email-only shares to a newly known user.
	BindEmail(ctx context.Context, email string, userID uuid.UUID) (int64, error)
}
