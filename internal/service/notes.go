package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/realtime"
	"github.com/and161185/conote/internal/repository"
)

// NoteService is the note store: CRUD, listings and the revision ledger.
// Every operation resolves the caller's access first.
type NoteService interface {
	Create(ctx context.Context, ownerID uuid.UUID, title, content string) (*model.NoteView, error)
	Get(ctx context.Context, noteID, userID uuid.UUID) (*model.NoteView, error)
	Update(ctx context.Context, noteID, userID uuid.UUID, upd model.NoteUpdate) (*model.NoteView, error)
	Delete(ctx context.Context, noteID, userID uuid.UUID) error
	ListOwned(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]model.NoteView, error)
	ListShared(ctx context.Context, userID uuid.UUID) ([]model.NoteView, error)
	Search(ctx context.Context, userID uuid.UUID, query string) ([]model.NoteView, error)
	Pending(ctx context.Context, userID uuid.UUID) ([]model.PendingShare, error)
	SharedByMe(ctx context.Context, userID uuid.UUID) ([]model.SharedByMe, error)
	Revisions(ctx context.Context, noteID, userID uuid.UUID) ([]model.Revision, error)
	Restore(ctx context.Context, noteID, revisionID, userID uuid.UUID) (*model.NoteView, error)
	// Access resolves the caller's permission on a note.
	Access(ctx context.Context, noteID, userID uuid.UUID) (model.Access, error)
}

type NoteServiceImpl struct {
	users     repository.UserRepository
	notes     repository.NoteRepository
	revisions repository.RevisionRepository
	shares    repository.ShareRepository
	acl       *AccessChecker
	notify    Notifier
	log       *zap.Logger
	now       func() time.Time
}

// NewNoteService constructs NoteService. A nil notifier disables fan-out.
func NewNoteService(
	users repository.UserRepository,
	notes repository.NoteRepository,
	revisions repository.RevisionRepository,
	shares repository.ShareRepository,
	notify Notifier,
	log *zap.Logger,
) *NoteServiceImpl {
	if notify == nil {
		notify = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteServiceImpl{
		users: users, notes: notes, revisions: revisions, shares: shares,
		acl: NewAccessChecker(notes, shares), notify: notify, log: log, now: time.Now,
	}
}

// authorize loads the note and the caller's access. A missing note is
// NotFound, no access is Forbidden.
func (s *NoteServiceImpl) authorize(ctx context.Context, noteID, userID uuid.UUID) (*model.Note, model.Access, error) {
	return s.acl.resolve(ctx, noteID, userID)
}

// Access implements NoteService.
func (s *NoteServiceImpl) Access(ctx context.Context, noteID, userID uuid.UUID) (model.Access, error) {
	_, acc, err := s.authorize(ctx, noteID, userID)
	return acc, err
}

// Create writes the note at version 1 together with its first revision.
func (s *NoteServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, title, content string) (*model.NoteView, error) {
	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("user not found")
		}
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errs.Invalid("title is required")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	revID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	n := &model.Note{ID: id, OwnerID: ownerID, Title: title, Content: content, Version: 1}
	initial := model.Revision{ID: revID, NoteID: id, Version: 1, Content: content, AuthorID: ownerID}
	if err := s.notes.Create(ctx, n, initial); err != nil {
		return nil, err
	}
	return &model.NoteView{Note: *n, Access: model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit}}, nil
}

// Get implements NoteService.
func (s *NoteServiceImpl) Get(ctx context.Context, noteID, userID uuid.UUID) (*model.NoteView, error) {
	n, acc, err := s.authorize(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return &model.NoteView{Note: *n, Access: acc}, nil
}

// Update applies a patch and fans the result out to the other room members.
func (s *NoteServiceImpl) Update(ctx context.Context, noteID, userID uuid.UUID, upd model.NoteUpdate) (*model.NoteView, error) {
	if upd.Empty() {
		return nil, errs.Invalid("nothing to update")
	}
	v, err := s.apply(ctx, noteID, userID, upd)
	if err != nil {
		return nil, err
	}
	s.broadcastUpdate(v, userID)
	return v, nil
}

func (s *NoteServiceImpl) broadcastUpdate(v *model.NoteView, userID uuid.UUID) {
	title := v.Note.Title
	s.notify.NotifyRoomExcept(v.Note.ID, userID, realtime.EventContentUpdate, realtime.ContentUpdate{
		NoteID:    v.Note.ID,
		Content:   v.Note.Content,
		Title:     &title,
		Version:   v.Note.Version,
		UserID:    userID,
		Timestamp: s.now().UTC(),
	})
}

// apply is the write path shared by Update, Restore and realtime saves.
func (s *NoteServiceImpl) apply(ctx context.Context, noteID, userID uuid.UUID, upd model.NoteUpdate) (*model.NoteView, error) {
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return nil, errs.Invalid("title must not be empty")
		}
		upd.Title = &t
	}
	_, acc, err := s.authorize(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	if !acc.CanWrite() {
		return nil, errs.Forbidden("you do not have edit permission on this note")
	}
	n, err := s.notes.ApplyUpdate(ctx, noteID, userID, upd)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("note not found")
		}
		return nil, err
	}
	return &model.NoteView{Note: *n, Access: acc}, nil
}

// Delete removes the note with its revisions and shares. Owner only.
func (s *NoteServiceImpl) Delete(ctx context.Context, noteID, userID uuid.UUID) error {
	_, acc, err := s.authorize(ctx, noteID, userID)
	if err != nil {
		return err
	}
	if !acc.IsOwner() {
		return errs.Forbidden("only the owner can delete this note")
	}
	if err := s.notes.Delete(ctx, noteID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.NotFound("note not found")
		}
		return errs.Internal(err, "failed to delete note")
	}
	s.notify.NotifyRoom(noteID, realtime.EventNotification, realtime.Notification{
		Type:    realtime.NotifyNoteDeleted,
		NoteID:  noteID,
		Message: "this note has been deleted",
	})
	return nil
}

// ListOwned implements NoteService.
func (s *NoteServiceImpl) ListOwned(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]model.NoteView, error) {
	notes, err := s.notes.ListOwned(ctx, userID, includeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]model.NoteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, model.NoteView{Note: n, Access: model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit}})
	}
	return out, nil
}

// ListShared implements NoteService.
func (s *NoteServiceImpl) ListShared(ctx context.Context, userID uuid.UUID) ([]model.NoteView, error) {
	return s.notes.ListSharedWith(ctx, userID)
}

// Search implements NoteService.
func (s *NoteServiceImpl) Search(ctx context.Context, userID uuid.UUID, query string) ([]model.NoteView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Invalid("search query is required")
	}
	return s.notes.Search(ctx, userID, query)
}

// Pending lists invitations for the caller, one per note. When a note has
// several open invitations the one carrying a token wins.
func (s *NoteServiceImpl) Pending(ctx context.Context, userID uuid.UUID) ([]model.PendingShare, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := s.shares.ListPending(ctx, userID, u.Email)
	if err != nil {
		return nil, err
	}
	idx := make(map[uuid.UUID]int, len(all))
	out := make([]model.PendingShare, 0, len(all))
	for _, p := range all {
		i, seen := idx[p.Note.ID]
		if !seen {
			idx[p.Note.ID] = len(out)
			out = append(out, p)
			continue
		}
		if out[i].ShareToken == nil && p.ShareToken != nil {
			out[i] = p
		}
	}
	return out, nil
}

// SharedByMe lists the caller's notes that have live shares.
func (s *NoteServiceImpl) SharedByMe(ctx context.Context, userID uuid.UUID) ([]model.SharedByMe, error) {
	shares, err := s.shares.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return []model.SharedByMe{}, nil
	}
	byNote := map[uuid.UUID][]model.Share{}
	for _, sh := range shares {
		byNote[sh.NoteID] = append(byNote[sh.NoteID], sh)
	}
	notes, err := s.notes.ListOwned(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	out := make([]model.SharedByMe, 0, len(byNote))
	for _, n := range notes {
		if sh, ok := byNote[n.ID]; ok {
			out = append(out, model.SharedByMe{Note: n, Shares: sh})
		}
	}
	return out, nil
}

// Revisions returns snapshots below the head version, newest first.
func (s *NoteServiceImpl) Revisions(ctx context.Context, noteID, userID uuid.UUID) ([]model.Revision, error) {
	n, _, err := s.authorize(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return s.revisions.ListBefore(ctx, noteID, n.Version)
}

// Restore writes a revision's content back as a new version. The content
// before the restore is snapshotted like any other edit.
func (s *NoteServiceImpl) Restore(ctx context.Context, noteID, revisionID, userID uuid.UUID) (*model.NoteView, error) {
	rev, err := s.revisions.Get(ctx, noteID, revisionID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// hide whether the note exists from callers without access
			if _, _, aerr := s.authorize(ctx, noteID, userID); aerr != nil {
				return nil, aerr
			}
			return nil, errs.NotFound("revision not found")
		}
		return nil, err
	}
	v, err := s.apply(ctx, noteID, userID, model.NoteUpdate{Content: &rev.Content, ForceRevision: true})
	if err != nil {
		return nil, err
	}
	s.broadcastUpdate(v, userID)
	return v, nil
}
