// Package access holds the single permission decision used by every note
// operation and by the realtime hub.
package access

import (
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/model"
)

// Resolve decides what userID may do with a note owned by ownerID given the
// note's shares. Owners always get edit, even when a share row targets them.
// Only accepted, non-revoked shares bound to userID grant access; pending
// shares never do.
func Resolve(ownerID uuid.UUID, shares []model.Share, userID uuid.UUID) model.Access {
	if userID == uuid.Nil {
		return model.NoAccess
	}
	if userID == ownerID {
		return model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit}
	}
	for _, s := range shares {
		if !s.Grants() || !s.RecipientUserID.Valid || s.RecipientUserID.UUID != userID {
			continue
		}
		if !s.Permission.Valid() {
			continue
		}
		return model.Access{Role: model.AccessShared, Permission: s.Permission}
	}
	return model.NoAccess
}

// ForNote is Resolve applied to a loaded note.
func ForNote(n *model.Note, shares []model.Share, userID uuid.UUID) model.Access {
	if n == nil {
		return model.NoAccess
	}
	return Resolve(n.OwnerID, shares, userID)
}
