// Package convert maps domain models to and from the JSON wire types of the
// HTTP API.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	model "github.com/and161185/conote/internal/model"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// ParseID parses a path or body identifier.
func ParseID(s string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// --- Notes (server -> client) ---

// Note is a note as seen by one requester.
type Note struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Version    int64      `json:"version"`
	IsArchived bool       `json:"isArchived"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	Role       string     `json:"role,omitempty"`
	Permission string     `json:"permission,omitempty"`

	// pending invitations
	ShareID    string `json:"shareId,omitempty"`
	ShareToken string `json:"shareToken,omitempty"`
	SharedBy   string `json:"sharedBy,omitempty"`

	// shared-by-me listing
	Shares []Share `json:"shares,omitempty"`
}

func note(n model.Note) Note {
	return Note{
		ID:         n.ID.String(),
		OwnerID:    n.OwnerID.String(),
		Title:      n.Title,
		Content:    n.Content,
		Version:    n.Version,
		IsArchived: n.IsArchived,
		CreatedAt:  ts(n.CreatedAt),
		UpdatedAt:  ts(n.UpdatedAt),
	}
}

// ToNote converts a NoteView, attaching the requester's permission.
func ToNote(v model.NoteView) Note {
	out := note(v.Note)
	out.Role = string(v.Access.Role)
	out.Permission = string(v.Access.Permission)
	return out
}

// ToNotes converts a slice of NoteView. The result is never nil.
func ToNotes(vs []model.NoteView) []Note {
	out := make([]Note, 0, len(vs))
	for _, v := range vs {
		out = append(out, ToNote(v))
	}
	return out
}

// ToPending converts open invitations with the share id and token attached.
func ToPending(ps []model.PendingShare) []Note {
	out := make([]Note, 0, len(ps))
	for _, p := range ps {
		n := note(p.Note)
		n.ShareID = p.ShareID.String()
		if p.ShareToken != nil {
			n.ShareToken = *p.ShareToken
		}
		n.Permission = string(p.Permission)
		n.SharedBy = p.SharedBy
		out = append(out, n)
	}
	return out
}

// ToSharedByMe converts owned notes with their live shares attached.
func ToSharedByMe(xs []model.SharedByMe) []Note {
	out := make([]Note, 0, len(xs))
	for _, x := range xs {
		n := note(x.Note)
		n.Role = string(model.AccessOwner)
		n.Permission = string(model.PermissionEdit)
		n.Shares = ToShares(x.Shares)
		out = append(out, n)
	}
	return out
}

// --- Shares ---

// Share is a share row as shown to the note owner.
type Share struct {
	ID              string     `json:"id"`
	NoteID          string     `json:"noteId"`
	RecipientUserID string     `json:"recipientUserId,omitempty"`
	RecipientEmail  string     `json:"recipientEmail,omitempty"`
	Permission      string     `json:"permission"`
	State           string     `json:"state"`
	IsAccepted      bool       `json:"isAccepted"`
	IsRevoked       bool       `json:"isRevoked"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// ToShare converts a share. The token is never exposed here.
func ToShare(s model.Share) Share {
	out := Share{
		ID:         s.ID.String(),
		NoteID:     s.NoteID.String(),
		Permission: string(s.Permission),
		State:      string(s.State()),
		IsAccepted: s.IsAccepted,
		IsRevoked:  s.IsRevoked,
		CreatedAt:  ts(s.CreatedAt),
	}
	if s.RecipientUserID.Valid {
		out.RecipientUserID = s.RecipientUserID.UUID.String()
	}
	if s.RecipientEmail != nil {
		out.RecipientEmail = *s.RecipientEmail
	}
	return out
}

// ToShares converts a slice of shares.
func ToShares(ss []model.Share) []Share {
	out := make([]Share, 0, len(ss))
	for _, s := range ss {
		out = append(out, ToShare(s))
	}
	return out
}

// ShareReceipt is returned to the owner after sharing.
type ShareReceipt struct {
	ShareID    string `json:"shareId"`
	ShareToken string `json:"shareToken"`
}

// ToShareReceipt converts a receipt.
func ToShareReceipt(r model.ShareReceipt) ShareReceipt {
	return ShareReceipt{ShareID: r.ShareID.String(), ShareToken: r.ShareToken}
}

// --- Revisions ---

type Revision struct {
	ID        string     `json:"id"`
	NoteID    string     `json:"noteId"`
	Version   int64      `json:"version"`
	Content   string     `json:"content"`
	AuthorID  string     `json:"authorId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ToRevisions converts ledger entries, keeping their order.
func ToRevisions(rs []model.Revision) []Revision {
	out := make([]Revision, 0, len(rs))
	for _, r := range rs {
		out = append(out, Revision{
			ID:        r.ID.String(),
			NoteID:    r.NoteID.String(),
			Version:   r.Version,
			Content:   r.Content,
			AuthorID:  r.AuthorID.String(),
			CreatedAt: ts(r.CreatedAt),
		})
	}
	return out
}

// --- Identity ---

type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	Role           string     `json:"role"`
	Provider       string     `json:"provider"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

// ToUser converts an account. Credentials are never part of the output.
func ToUser(m model.User) User {
	return User{
		ID:             m.ID.String(),
		Name:           m.Name,
		Email:          m.Email,
		ProfilePicture: m.ProfilePicture,
		Role:           string(m.Role),
		Provider:       string(m.Provider),
		CreatedAt:      ts(m.CreatedAt),
	}
}

// Session is returned by register and login endpoints.
type Session struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        User      `json:"user"`
}

// ToSession pairs issued tokens with the account.
func ToSession(t model.Tokens, m model.User) Session {
	return Session{AccessToken: t.AccessToken, ExpiresAt: t.ExpiresAt.UTC(), User: ToUser(m)}
}

// --- Requests (client -> server) ---

type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteRequest is a partial update; absent fields are left untouched.
type UpdateNoteRequest struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	IsArchived *bool   `json:"isArchived"`
}

// FromUpdateNoteRequest converts the request into a domain patch.
func FromUpdateNoteRequest(in UpdateNoteRequest) model.NoteUpdate {
	return model.NoteUpdate{Title: in.Title, Content: in.Content, IsArchived: in.IsArchived}
}

type ShareRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ExternalLoginRequest struct {
	Assertion string `json:"assertion"`
}
