package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// NoteRepo implements repository.NoteRepository.
type NoteRepo struct{ s *Store }

// Create stores the note and its first revision.
func (r *NoteRepo) Create(_ context.Context, n *model.Note, initial model.Revision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notes[n.ID]; ok {
		return errs.ErrAlreadyExists
	}
	now := r.s.now()
	n.CreatedAt, n.UpdatedAt = now, now
	cp := *n
	r.s.notes[n.ID] = &cp

	initial.NoteID = n.ID
	initial.CreatedAt = now
	r.s.revisions[n.ID] = []model.Revision{initial}
	return nil
}

// Get implements repository.NoteRepository.
func (r *NoteRepo) Get(_ context.Context, id uuid.UUID) (*model.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

// ApplyUpdate mirrors the postgres implementation with the store mutex
// standing in for the row lock.
func (r *NoteRepo) ApplyUpdate(_ context.Context, id, authorID uuid.UUID, upd model.NoteUpdate) (*model.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	now := r.s.now()
	if upd.Content != nil && (upd.ForceRevision || *upd.Content != n.Content) {
		if err := r.snapshot(n, authorID, now); err != nil {
			return nil, err
		}
		n.Version++
		n.Content = *upd.Content
		if err := r.snapshot(n, authorID, now); err != nil {
			return nil, err
		}
	}
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.IsArchived != nil {
		n.IsArchived = *upd.IsArchived
	}
	n.UpdatedAt = now
	cp := *n
	return &cp, nil
}

// snapshot records n's current content unless its version is already in
// the ledger. Callers hold the store mutex.
func (r *NoteRepo) snapshot(n *model.Note, authorID uuid.UUID, at time.Time) error {
	revs := r.s.revisions[n.ID]
	if slices.ContainsFunc(revs, func(rv model.Revision) bool { return rv.Version == n.Version }) {
		return nil
	}
	revID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	r.s.revisions[n.ID] = append(revs, model.Revision{
		ID: revID, NoteID: n.ID, Version: n.Version, Content: n.Content, AuthorID: authorID, CreatedAt: at,
	})
	return nil
}

// Delete drops revisions, shares and the note.
func (r *NoteRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notes[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.s.revisions, id)
	for sid, sh := range r.s.shares {
		if sh.NoteID == id {
			delete(r.s.shares, sid)
		}
	}
	delete(r.s.notes, id)
	return nil
}

// ListOwned implements repository.NoteRepository.
func (r *NoteRepo) ListOwned(_ context.Context, ownerID uuid.UUID, includeArchived bool) ([]model.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Note
	for _, n := range r.s.notes {
		if n.OwnerID == ownerID && (includeArchived || !n.IsArchived) {
			out = append(out, *n)
		}
	}
	sortByUpdatedDesc(out, func(n model.Note) time.Time { return n.UpdatedAt })
	return out, nil
}

// sharedViews lists notes reachable by userID through granting shares.
// Caller holds the lock.
func (r *NoteRepo) sharedViews(userID uuid.UUID, keep func(*model.Note) bool) []model.NoteView {
	var out []model.NoteView
	seen := map[uuid.UUID]bool{}
	for _, sh := range r.s.shares {
		if !sh.Grants() || !sh.RecipientUserID.Valid || sh.RecipientUserID.UUID != userID {
			continue
		}
		n, ok := r.s.notes[sh.NoteID]
		if !ok || n.OwnerID == userID || seen[n.ID] || !keep(n) {
			continue
		}
		seen[n.ID] = true
		out = append(out, model.NoteView{
			Note:   *n,
			Access: model.Access{Role: model.AccessShared, Permission: sh.Permission},
		})
	}
	return out
}

// ListSharedWith implements repository.NoteRepository.
func (r *NoteRepo) ListSharedWith(_ context.Context, userID uuid.UUID) ([]model.NoteView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.sharedViews(userID, func(*model.Note) bool { return true })
	sortByUpdatedDesc(out, func(v model.NoteView) time.Time { return v.Note.UpdatedAt })
	return out, nil
}

// Search implements repository.NoteRepository.
func (r *NoteRepo) Search(_ context.Context, userID uuid.UUID, query string) ([]model.NoteView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	match := func(n *model.Note) bool {
		return !n.IsArchived && (containsFold(n.Title, query) || containsFold(n.Content, query))
	}
	var out []model.NoteView
	for _, n := range r.s.notes {
		if n.OwnerID == userID && match(n) {
			out = append(out, model.NoteView{
				Note:   *n,
				Access: model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit},
			})
		}
	}
	out = append(out, r.sharedViews(userID, match)...)
	sortByUpdatedDesc(out, func(v model.NoteView) time.Time { return v.Note.UpdatedAt })
	return out, nil
}

// RevisionRepo implements repository.RevisionRepository.
type RevisionRepo struct{ s *Store }

// ListBefore implements repository.RevisionRepository.
func (r *RevisionRepo) ListBefore(_ context.Context, noteID uuid.UUID, below int64) ([]model.Revision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Revision
	for _, rv := range r.s.revisions[noteID] {
		if rv.Version < below {
			out = append(out, rv)
		}
	}
	slices.SortFunc(out, byVersionDesc)
	return out, nil
}

// Get implements repository.RevisionRepository.
func (r *RevisionRepo) Get(_ context.Context, noteID, revisionID uuid.UUID) (*model.Revision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.revisions[noteID] {
		if rv.ID == revisionID {
			cp := rv
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
