package access

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/conote/internal/model"
)

func share(user uuid.UUID, perm model.Permission, accepted, revoked bool) model.Share {
	return model.Share{
		ID:              uuid.Must(uuid.NewV4()),
		RecipientUserID: uuid.NullUUID{UUID: user, Valid: user != uuid.Nil},
		Permission:      perm,
		IsAccepted:      accepted,
		IsRevoked:       revoked,
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	owner := uuid.Must(uuid.NewV4())
	bob := uuid.Must(uuid.NewV4())
	carol := uuid.Must(uuid.NewV4())

	tests := []struct {
		name   string
		shares []model.Share
		user   uuid.UUID
		want   model.Access
	}{
		{
			name: "owner",
			user: owner,
			want: model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit},
		},
		{
			name:   "owner with revoked self share",
			shares: []model.Share{share(owner, model.PermissionRead, true, true)},
			user:   owner,
			want:   model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit},
		},
		{
			name:   "owner with read self share",
			shares: []model.Share{share(owner, model.PermissionRead, true, false)},
			user:   owner,
			want:   model.Access{Role: model.AccessOwner, Permission: model.PermissionEdit},
		},
		{
			name:   "accepted read",
			shares: []model.Share{share(bob, model.PermissionRead, true, false)},
			user:   bob,
			want:   model.Access{Role: model.AccessShared, Permission: model.PermissionRead},
		},
		{
			name:   "accepted edit",
			shares: []model.Share{share(carol, model.PermissionRead, true, false), share(bob, model.PermissionEdit, true, false)},
			user:   bob,
			want:   model.Access{Role: model.AccessShared, Permission: model.PermissionEdit},
		},
		{
			name:   "pending grants nothing",
			shares: []model.Share{share(bob, model.PermissionEdit, false, false)},
			user:   bob,
			want:   model.NoAccess,
		},
		{
			name:   "revoked grants nothing",
			shares: []model.Share{share(bob, model.PermissionEdit, true, true)},
			user:   bob,
			want:   model.NoAccess,
		},
		{
			name:   "email-only share grants nothing",
			shares: []model.Share{share(uuid.Nil, model.PermissionEdit, true, false)},
			user:   bob,
			want:   model.NoAccess,
		},
		{
			name: "stranger",
			user: carol,
			want: model.NoAccess,
		},
		{
			name: "anonymous",
			user: uuid.Nil,
			want: model.NoAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Resolve(owner, tt.shares, tt.user))
		})
	}
}

func TestAccessPredicates(t *testing.T) {
	t.Parallel()

	require.False(t, model.NoAccess.CanRead())
	require.False(t, model.NoAccess.CanWrite())

	read := model.Access{Role: model.AccessShared, Permission: model.PermissionRead}
	require.True(t, read.CanRead())
	require.False(t, read.CanWrite())
	require.False(t, read.IsOwner())

	require.True(t, ForNote(&model.Note{OwnerID: uuid.Nil}, nil, uuid.Nil) == model.NoAccess)
	require.Equal(t, model.NoAccess, ForNote(nil, nil, uuid.Must(uuid.NewV4())))
}
