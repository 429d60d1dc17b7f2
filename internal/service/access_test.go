package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

func TestAccessChecker(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.user(t, "A", "a@x.com")
	b := e.user(t, "B", "b@x.com")
	c := e.user(t, "C", "c@x.com")
	v, err := e.notes.Create(ctx, a.ID, "t", "x")
	require.NoError(t, err)
	id := v.Note.ID

	chk := NewAccessChecker(e.store.Notes(), e.store.Shares())

	acc, err := chk.Access(ctx, id, a.ID)
	require.NoError(t, err)
	require.True(t, acc.IsOwner())
	require.True(t, acc.CanWrite())

	_, err = chk.Access(ctx, id, b.ID)
	require.True(t, errors.Is(err, errs.ErrForbidden))

	rc, err := e.shares.Share(ctx, a.ID, id, "b@x.com", model.PermissionRead)
	require.NoError(t, err)
	_, err = chk.Access(ctx, id, b.ID)
	require.True(t, errors.Is(err, errs.ErrForbidden), "pending share grants nothing")

	_, err = e.shares.Accept(ctx, rc.ShareToken, b.ID)
	require.NoError(t, err)
	acc, err = chk.Access(ctx, id, b.ID)
	require.NoError(t, err)
	require.Equal(t, model.AccessShared, acc.Role)
	require.False(t, acc.CanWrite())

	_, err = chk.Access(ctx, id, c.ID)
	require.True(t, errors.Is(err, errs.ErrForbidden))

	_, err = chk.Access(ctx, uuid.Must(uuid.NewV4()), a.ID)
	require.True(t, errors.Is(err, errs.ErrNotFound))
	require.Equal(t, "note not found", errs.Reason(err))
}
