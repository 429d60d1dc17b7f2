package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

var shareColNames = []string{"id", "note_id", "recipient_user_id", "recipient_email", "permission",
	"is_accepted", "is_revoked", "share_token", "created_at", "updated_at"}

func TestShareRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	ts := time.Now().UTC()
	tok := "tok"
	s := &model.Share{
		ID:              uuid.Must(uuid.NewV4()),
		NoteID:          uuid.Must(uuid.NewV4()),
		RecipientUserID: uuid.NullUUID{UUID: uuid.Must(uuid.NewV4()), Valid: true},
		Permission:      model.PermissionEdit,
		ShareToken:      &tok,
	}

	mock.ExpectQuery(`INSERT INTO shares \(id, note_id, recipient_user_id, recipient_email, permission, share_token\)`).
		WithArgs(s.ID, s.NoteID, s.RecipientUserID, (*string)(nil), "edit", &tok).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))
	require.NoError(t, r.Create(context.Background(), s))
	require.Equal(t, ts, s.CreatedAt)

	mock.ExpectQuery(`INSERT INTO shares`).
		WithArgs(s.ID, s.NoteID, s.RecipientUserID, (*string)(nil), "edit", &tok).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(context.Background(), s), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepo_GetByToken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	ctx := context.Background()
	id, noteID := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	email := "b@x.com"
	tok := "abc"
	ts := time.Now()

	mock.ExpectQuery(`FROM shares s WHERE s.share_token=\$1`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows(shareColNames).
			AddRow(id, noteID, uuid.NullUUID{}, &email, "read", false, false, &tok, ts, ts))
	s, err := r.GetByToken(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, id, s.ID)
	require.False(t, s.RecipientUserID.Valid)
	require.Equal(t, "b@x.com", *s.RecipientEmail)
	require.Equal(t, model.SharePending, s.State())

	mock.ExpectQuery(`FROM shares s WHERE s.share_token=\$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByToken(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestShareRepo_ListByNote(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	noteID := uuid.Must(uuid.NewV4())
	user := uuid.NullUUID{UUID: uuid.Must(uuid.NewV4()), Valid: true}
	ts := time.Now()

	mock.ExpectQuery(`FROM shares s WHERE s.note_id=\$1 ORDER BY s.created_at`).
		WithArgs(noteID).
		WillReturnRows(pgxmock.NewRows(shareColNames).
			AddRow(uuid.Must(uuid.NewV4()), noteID, user, (*string)(nil), "edit", true, false, (*string)(nil), ts, ts).
			AddRow(uuid.Must(uuid.NewV4()), noteID, user, (*string)(nil), "read", true, true, (*string)(nil), ts, ts))
	out, err := r.ListByNote(context.Background(), noteID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].Grants())
	require.Equal(t, model.ShareRevoked, out[1].State())
}

func TestShareRepo_ListPending(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	user := uuid.Must(uuid.NewV4())
	owner := uuid.Must(uuid.NewV4())
	shareID := uuid.Must(uuid.NewV4())
	tok := "t1"
	ts := time.Now()

	cols := append(append([]string{}, noteColNames...), "share_id", "share_token", "permission", "shared_at", "name")
	mock.ExpectQuery(`WHERE NOT s.is_accepted AND NOT s.is_revoked`).
		WithArgs(user, "b@x.com").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.Must(uuid.NewV4()), owner, "Plan", "", int64(1), false, ts, ts,
				shareID, &tok, "edit", ts, "Alice"))
	out, err := r.ListPending(context.Background(), user, "b@x.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, shareID, out[0].ShareID)
	require.Equal(t, "Alice", out[0].SharedBy)
	require.Equal(t, model.PermissionEdit, out[0].Permission)
	require.Equal(t, "t1", *out[0].ShareToken)
}

func TestShareRepo_Accept(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	ctx := context.Background()
	id, user := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE shares SET is_accepted=true, recipient_user_id=\$2`).
		WithArgs(id, user).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Accept(ctx, id, user))

	mock.ExpectExec(`UPDATE shares SET is_accepted=true`).
		WithArgs(id, user).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Accept(ctx, id, user), errs.ErrVersionConflict)

	mock.ExpectExec(`UPDATE shares SET is_accepted=true`).
		WithArgs(id, user).
		WillReturnError(errors.New("boom"))
	require.Error(t, r.Accept(ctx, id, user))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepo_Revoke_Idempotent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE shares SET is_revoked=true`).WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	changed, err := r.Revoke(ctx, id)
	require.NoError(t, err)
	require.True(t, changed)

	mock.ExpectExec(`UPDATE shares SET is_revoked=true`).WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	changed, err = r.Revoke(ctx, id)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestShareRepo_BindEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewShareRepo(db)
	user := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE shares SET recipient_user_id=\$2`).
		WithArgs("b@x.com", user).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	n, err := r.BindEmail(context.Background(), "b@x.com", user)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
