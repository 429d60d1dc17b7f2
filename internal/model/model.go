// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Role is the account role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Provider names the identity source of an account.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// External reports whether p is a known external provider.
func (p Provider) External() bool { return p == ProviderGoogle || p == ProviderGitHub }

// User represents an account. PwdHash is nil for externally-authenticated identities.
type User struct {
	ID             uuid.UUID // PK
	Name           string
	Email          string // unique, stored lower-cased
	PwdHash        []byte // Argon2id(password, PwdSalt)
	PwdSalt        []byte
	ProfilePicture string
	Role           Role
	Provider       Provider
	ProviderID     string // empty for local accounts
	CreatedAt      time.Time
}

// Identity is the authenticated principal attached to requests and connections.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// Note is the note aggregate. Version grows by one on every content change.
type Note struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	Content    string
	Version    int64
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NoteUpdate is a partial note change. Nil fields are left untouched.
type NoteUpdate struct {
	Title      *string
	Content    *string
	IsArchived *bool
	// ForceRevision snapshots and bumps the version even when Content equals
	// the stored content (used by revision restore).
	ForceRevision bool
}

// Empty reports whether the update changes nothing.
func (u NoteUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil && u.IsArchived == nil
}

// Revision is an immutable snapshot of a note's content at a prior version.
type Revision struct {
	ID        uuid.UUID
	NoteID    uuid.UUID
	Version   int64
	Content   string
	AuthorID  uuid.UUID
	CreatedAt time.Time
}

// Permission is the level granted by a share.
type Permission string

const (
	PermissionNone Permission = ""
	PermissionRead Permission = "read"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p can be granted through a share.
func (p Permission) Valid() bool { return p == PermissionRead || p == PermissionEdit }

// Share is an access grant linking a note to a recipient.
type Share struct {
	ID              uuid.UUID
	NoteID          uuid.UUID
	RecipientUserID uuid.NullUUID
	RecipientEmail  *string
	Permission      Permission
	IsAccepted      bool
	IsRevoked       bool
	ShareToken      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShareState is the lifecycle state derived from the share flags.
type ShareState string

const (
	SharePending  ShareState = "pending"
	ShareAccepted ShareState = "accepted"
	ShareRevoked  ShareState = "revoked"
)

// State derives the lifecycle state. Revoked wins over accepted.
func (s Share) State() ShareState {
	switch {
	case s.IsRevoked:
		return ShareRevoked
	case s.IsAccepted:
		return ShareAccepted
	default:
		return SharePending
	}
}

// Grants reports whether the share currently gives its recipient access.
func (s Share) Grants() bool { return s.IsAccepted && !s.IsRevoked }

// AccessRole describes how a user relates to a note.
type AccessRole string

const (
	AccessNone   AccessRole = "none"
	AccessOwner  AccessRole = "owner"
	AccessShared AccessRole = "shared"
)

// Access is the outcome of a permission decision.
type Access struct {
	Role       AccessRole
	Permission Permission
}

// NoAccess is the zero-permission decision.
var NoAccess = Access{Role: AccessNone, Permission: PermissionNone}

// CanRead reports whether the holder may see the note.
func (a Access) CanRead() bool { return a.Role != AccessNone && a.Role != "" }

// CanWrite reports whether the holder may change the note.
func (a Access) CanWrite() bool { return a.CanRead() && a.Permission == PermissionEdit }

// IsOwner reports owner access.
func (a Access) IsOwner() bool { return a.Role == AccessOwner }

// NoteView is a note projected for one requester with the permission attached.
type NoteView struct {
	Note   Note
	Access Access
}

// PendingShare is an invitation addressed to a user that is neither accepted nor revoked.
type PendingShare struct {
	Note       Note
	ShareID    uuid.UUID
	ShareToken *string
	Permission Permission
	SharedBy   string // owner display name
	CreatedAt  time.Time
}

// SharedByMe is an owned note together with its live shares.
type SharedByMe struct {
	Note   Note
	Shares []Share
}

// ShareReceipt is returned to the owner after creating a share.
type ShareReceipt struct {
	ShareID    uuid.UUID
	ShareToken string
}
