package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/model"
)

// NoteRepository stores notes and owns their revision snapshots.
type NoteRepository interface {
	// Create inserts the note together with its initial revision.
	Create(ctx context.Context, n *model.Note, initial model.Revision) error

	// Get returns a single note by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Note, error)

	// ApplyUpdate applies upd under a row lock. When the content changes it
	// first snapshots the current content at the current version, then bumps
	// the version.
	ApplyUpdate(ctx context.Context, id, authorID uuid.UUID, upd model.NoteUpdate) (*model.Note, error)

	// Delete removes revisions, shares and the note, in that order, atomically.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListOwned returns the owner's notes, newest first.
	ListOwned(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]model.Note, error)

	// ListSharedWith returns notes shared with userID through accepted, live shares.
	ListSharedWith(ctx context.Context, userID uuid.UUID) ([]model.NoteView, error)

	// Search matches title or content case-insensitively across non-archived
	// notes owned by or actively shared with userID.
	Search(ctx context.Context, userID uuid.UUID, query string) ([]model.NoteView, error)
}

// RevisionRepository reads the revision ledger.
type RevisionRepository interface {
	// ListBefore returns revisions with version < below, highest version first.
	ListBefore(ctx context.Context, noteID uuid.UUID, below int64) ([]model.Revision, error)
	// Get returns one revision of a note.
	Get(ctx context.Context, noteID, revisionID uuid.UUID) (*model.Revision, error)
}
