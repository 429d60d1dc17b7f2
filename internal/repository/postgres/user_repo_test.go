package postgres

import (
	"context"
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

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var userColNames = []string{"id", "name", "email", "pwd_hash", "pwd_salt", "profile_picture", "role", "provider", "provider_id", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Name:     "Alice",
		Email:    "a@x.com",
		PwdHash:  []byte("h"),
		PwdSalt:  []byte("s"),
		Role:     model.RoleUser,
		Provider: model.ProviderLocal,
	}

	mock.ExpectExec(`INSERT INTO users \(id, name, email, pwd_hash, pwd_salt, profile_picture, role, provider, provider_id\)`).
		WithArgs(u.ID, u.Name, u.Email, u.PwdHash, u.PwdSalt, "", "user", "local", (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Name, u.Email, u.PwdHash, u.PwdSalt, "", "user", "local", (*string)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID_and_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userColNames).
			AddRow(id, "Alice", "a@x.com", []byte("h"), []byte("s"), "", "admin", "local", "", ts))
	u, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, model.RoleAdmin, u.Role)
	require.Equal(t, model.ProviderLocal, u.Provider)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE email=\$1`).
		WithArgs("nobody@x.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByProvider(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE provider=\$1 AND provider_id=\$2`).
		WithArgs("github", "gh-42").
		WillReturnRows(pgxmock.NewRows(userColNames).
			AddRow(id, "Octo", "o@x.com", []byte(nil), []byte(nil), "", "user", "github", "gh-42", time.Now()))
	u, err := r.GetByProvider(context.Background(), model.ProviderGitHub, "gh-42")
	require.NoError(t, err)
	require.Nil(t, u.PwdHash)
	require.Equal(t, "gh-42", u.ProviderID)
}

func TestUserRepo_LinkProvider(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE users SET provider=\$2, provider_id=\$3 WHERE id=\$1`).
		WithArgs(id, "google", "g-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.LinkProvider(ctx, id, model.ProviderGoogle, "g-1"))

	mock.ExpectExec(`UPDATE users SET provider=\$2, provider_id=\$3 WHERE id=\$1`).
		WithArgs(id, "google", "g-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.LinkProvider(ctx, id, model.ProviderGoogle, "g-1"), errs.ErrNotFound)

	mock.ExpectExec(`UPDATE users SET provider=\$2, provider_id=\$3 WHERE id=\$1`).
		WithArgs(id, "google", "g-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.LinkProvider(ctx, id, model.ProviderGoogle, "g-1"), errs.ErrAlreadyExists)
}

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	t.Parallel()
	require.Equal(t, `%plan%`, containsPattern("plan"))
	require.Equal(t, `%100\%\_off\\%`, containsPattern(`100%_off\`))
}
