package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/conote/internal/crypto"
	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/events"
	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/realtime"
	"github.com/and161185/conote/internal/repository"
)

// ShareService is the share registry: invite, accept, decline and revoke.
type ShareService interface {
	Share(ctx context.Context, ownerID, noteID uuid.UUID, email string, perm model.Permission) (model.ShareReceipt, error)
	Accept(ctx context.Context, token string, userID uuid.UUID) (*model.NoteView, error)
	Decline(ctx context.Context, token string, userID uuid.UUID) error
	Revoke(ctx context.Context, shareID, requesterID uuid.UUID) error
}

type ShareServiceImpl struct {
	users  repository.UserRepository
	shares repository.ShareRepository
	notes  *NoteServiceImpl
	notify Notifier
	pub    events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewShareService constructs ShareService. Access checks go through notes.
func NewShareService(
	users repository.UserRepository,
	shares repository.ShareRepository,
	notes *NoteServiceImpl,
	notify Notifier,
	pub events.Publisher,
	log *zap.Logger,
) *ShareServiceImpl {
	if notify == nil {
		notify = NopNotifier{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ShareServiceImpl{users: users, shares: shares, notes: notes, notify: notify, pub: pub, log: log, now: time.Now}
}

// Share creates a pending invitation. A registered recipient is bound by id
// right away; otherwise the email is kept until someone claims it.
func (s *ShareServiceImpl) Share(
	ctx context.Context, ownerID, noteID uuid.UUID, email string, perm model.Permission,
) (model.ShareReceipt, error) {
	if !perm.Valid() {
		return model.ShareReceipt{}, errs.Invalid("permission must be read or edit")
	}
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return model.ShareReceipt{}, errs.Invalid("valid email is required")
	}
	n, acc, err := s.notes.authorize(ctx, noteID, ownerID)
	if err != nil {
		return model.ShareReceipt{}, err
	}
	if !acc.IsOwner() {
		return model.ShareReceipt{}, errs.Forbidden("only the owner can share this note")
	}
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return model.ShareReceipt{}, err
	}
	if strings.EqualFold(owner.Email, email) {
		return model.ShareReceipt{}, errs.Invalid("you cannot share a note with yourself")
	}

	var recipient *model.User
	switch u, err := s.users.GetByEmail(ctx, email); {
	case err == nil:
		recipient = u
	case !errors.Is(err, errs.ErrNotFound):
		return model.ShareReceipt{}, err
	}

	existing, err := s.shares.ListByNote(ctx, noteID)
	if err != nil {
		return model.ShareReceipt{}, err
	}
	for _, sh := range existing {
		if sh.IsRevoked {
			continue
		}
		sameUser := recipient != nil && sh.RecipientUserID.Valid && sh.RecipientUserID.UUID == recipient.ID
		sameEmail := sh.RecipientEmail != nil && strings.EqualFold(*sh.RecipientEmail, email)
		if sameUser || sameEmail {
			return model.ShareReceipt{}, errs.Invalid("note is already shared with this user")
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.ShareReceipt{}, err
	}
	token, err := pkgcrypto.NewToken()
	if err != nil {
		return model.ShareReceipt{}, err
	}
	sh := &model.Share{ID: id, NoteID: noteID, Permission: perm, ShareToken: &token}
	if recipient != nil {
		sh.RecipientUserID = uuid.NullUUID{UUID: recipient.ID, Valid: true}
	} else {
		sh.RecipientEmail = &email
	}
	if err := s.shares.Create(ctx, sh); err != nil {
		return model.ShareReceipt{}, err
	}

	if recipient != nil {
		s.notify.NotifyUser(recipient.ID, realtime.EventNoteShared, realtime.NoteShared{
			NoteID:     noteID,
			Title:      n.Title,
			ShareID:    id,
			ShareToken: token,
			Permission: string(perm),
			SharedBy:   owner.Name,
		})
	}
	s.notify.NotifyRoom(noteID, realtime.EventShareUpdated, realtime.ShareUpdated{
		NoteID: noteID, ShareID: id, Permission: string(perm),
	})
	s.publish(ctx, events.ShareCreated, sh, ownerID)
	return model.ShareReceipt{ShareID: id, ShareToken: token}, nil
}

// redeemable loads the share behind a token and checks it may still be
// answered by userID.
func (s *ShareServiceImpl) redeemable(ctx context.Context, token string, userID uuid.UUID) (*model.Share, error) {
	if token == "" {
		return nil, errs.NotFound("invalid share token")
	}
	sh, err := s.shares.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("invalid share token")
		}
		return nil, err
	}
	switch sh.State() {
	case model.ShareRevoked:
		return nil, errs.Invalid("share has been revoked")
	case model.ShareAccepted:
		return nil, errs.Invalid("share already accepted")
	}
	if sh.RecipientUserID.Valid {
		if sh.RecipientUserID.UUID != userID {
			return nil, errs.Forbidden("not intended for you")
		}
		return sh, nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sh.RecipientEmail == nil || !strings.EqualFold(*sh.RecipientEmail, u.Email) {
		return nil, errs.Forbidden("not intended for you")
	}
	return sh, nil
}

// Accept binds the recipient and moves the share to accepted.
func (s *ShareServiceImpl) Accept(ctx context.Context, token string, userID uuid.UUID) (*model.NoteView, error) {
	sh, err := s.redeemable(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	if err := s.shares.Accept(ctx, sh.ID, userID); err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			// lost a race with another accept, decline or revoke
			return nil, errs.Invalid("share is no longer pending")
		}
		return nil, err
	}
	sh.IsAccepted = true
	sh.RecipientUserID = uuid.NullUUID{UUID: userID, Valid: true}

	v, err := s.notes.Get(ctx, sh.NoteID, userID)
	if err != nil {
		return nil, err
	}
	shareID := sh.ID
	s.notify.NotifyUser(v.Note.OwnerID, realtime.EventNotification, realtime.Notification{
		Type:    realtime.NotifyShareAccepted,
		NoteID:  sh.NoteID,
		ShareID: &shareID,
		Message: "your share invitation was accepted",
	})
	s.notify.NotifyRoom(sh.NoteID, realtime.EventShareUpdated, realtime.ShareUpdated{
		NoteID: sh.NoteID, ShareID: sh.ID, Permission: string(sh.Permission), Accepted: true,
	})
	s.publish(ctx, events.ShareAccepted, sh, userID)
	return v, nil
}

// Decline closes an invitation. It sets the same terminal flag as revoke.
func (s *ShareServiceImpl) Decline(ctx context.Context, token string, userID uuid.UUID) error {
	sh, err := s.redeemable(ctx, token, userID)
	if err != nil {
		return err
	}
	changed, err := s.shares.Revoke(ctx, sh.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	sh.IsRevoked = true

	if n, err := s.notes.notes.Get(ctx, sh.NoteID); err == nil {
		shareID := sh.ID
		s.notify.NotifyUser(n.OwnerID, realtime.EventNotification, realtime.Notification{
			Type:    realtime.NotifyShareDeclined,
			NoteID:  sh.NoteID,
			ShareID: &shareID,
			Message: "your share invitation was declined",
		})
	}
	s.closeAccess(sh, userID)
	s.publish(ctx, events.ShareDeclined, sh, userID)
	return nil
}

// Revoke ends a share. Only the note owner may revoke; a second revoke is a
// no-op that sends nothing.
func (s *ShareServiceImpl) Revoke(ctx context.Context, shareID, requesterID uuid.UUID) error {
	sh, err := s.shares.Get(ctx, shareID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.NotFound("share not found")
		}
		return err
	}
	_, acc, err := s.notes.authorize(ctx, sh.NoteID, requesterID)
	if err != nil {
		return err
	}
	if !acc.IsOwner() {
		return errs.Forbidden("only the owner can revoke shares")
	}
	changed, err := s.shares.Revoke(ctx, shareID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	sh.IsRevoked = true

	if sh.RecipientUserID.Valid {
		s.notify.NotifyUser(sh.RecipientUserID.UUID, realtime.EventNotification, realtime.Notification{
			Type:    realtime.NotifyShareRevoked,
			NoteID:  sh.NoteID,
			ShareID: &shareID,
			Message: "your access to this note was revoked",
		})
		s.closeAccess(sh, sh.RecipientUserID.UUID)
	} else {
		s.closeAccess(sh, uuid.Nil)
	}
	s.publish(ctx, events.ShareRevoked, sh, requesterID)
	return nil
}

// closeAccess tells the room the access list changed and drops the former
// recipient from it.
func (s *ShareServiceImpl) closeAccess(sh *model.Share, recipient uuid.UUID) {
	upd := realtime.ShareUpdated{
		NoteID: sh.NoteID, ShareID: sh.ID, Permission: string(sh.Permission),
		Accepted: sh.IsAccepted, Revoked: true,
	}
	s.notify.NotifyRoom(sh.NoteID, realtime.EventShareUpdated, upd)
	if recipient != uuid.Nil {
		s.notify.NotifyUser(recipient, realtime.EventShareUpdated, upd)
		s.notify.Evict(sh.NoteID, recipient)
	}
}

func (s *ShareServiceImpl) publish(ctx context.Context, typ string, sh *model.Share, actor uuid.UUID) {
	ev := events.ShareEvent{
		EventType:  typ,
		ShareID:    sh.ID,
		NoteID:     sh.NoteID,
		ActorID:    actor,
		Permission: string(sh.Permission),
		Timestamp:  s.now().UTC(),
	}
	if err := s.pub.PublishShare(ctx, ev); err != nil {
		s.log.Warn("share activity not published", zap.String("type", typ), zap.Error(err))
	}
}
