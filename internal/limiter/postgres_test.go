package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var pgPolicy = Policy{Window: 15 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute}

func newPG(t *testing.T) (*PG, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewPG(mock, pgPolicy)
	l.now = func() time.Time { return now }
	return l, mock, now
}

func TestPG_Allow(t *testing.T) {
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	t.Run("no row", func(t *testing.T) {
		l, mock, _ := newPG(t)
		mock.ExpectQuery(`SELECT blocked_until, updated_at FROM auth_limiter`).
			WithArgs("a@x.com", ip).
			WillReturnError(pgx.ErrNoRows)
		ok, wait, err := l.Allow(ctx, "a@x.com", ip)
		require.NoError(t, err)
		require.True(t, ok)
		require.Zero(t, wait)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blocked", func(t *testing.T) {
		l, mock, now := newPG(t)
		mock.ExpectQuery(`SELECT blocked_until`).
			WithArgs("a@x.com", ip).
			WillReturnRows(mock.NewRows([]string{"blocked_until", "updated_at"}).AddRow(now.Add(4*time.Minute), now))
		ok, wait, err := l.Allow(ctx, "a@x.com", ip)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 4*time.Minute, wait)
	})

	t.Run("block expired", func(t *testing.T) {
		l, mock, now := newPG(t)
		mock.ExpectQuery(`SELECT blocked_until`).
			WithArgs("a@x.com", ip).
			WillReturnRows(mock.NewRows([]string{"blocked_until", "updated_at"}).AddRow(now.Add(-time.Second), now))
		ok, _, err := l.Allow(ctx, "a@x.com", ip)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("db error", func(t *testing.T) {
		l, mock, _ := newPG(t)
		boom := errors.New("db boom")
		mock.ExpectQuery(`SELECT blocked_until`).WithArgs("a@x.com", ip).WillReturnError(boom)
		ok, _, err := l.Allow(ctx, "a@x.com", ip)
		require.ErrorIs(t, err, boom)
		require.False(t, ok)
	})
}

func TestPG_FailureBlocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	ip := HashIP("10.0.0.1")
	l, mock, now := newPG(t)

	mock.ExpectQuery(`(?s)INSERT INTO auth_limiter.*RETURNING fail_count`).
		WithArgs("a@x.com", ip, pgPolicy.Window).
		WillReturnRows(mock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, wait, err := l.Failure(ctx, "a@x.com", ip)
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, wait)

	mock.ExpectQuery(`RETURNING fail_count`).
		WithArgs("a@x.com", ip, pgPolicy.Window).
		WillReturnRows(mock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(`UPDATE auth_limiter SET blocked_until`).
		WithArgs("a@x.com", ip, now.Add(pgPolicy.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, wait, err = l.Failure(ctx, "a@x.com", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, pgPolicy.BlockFor, wait)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_SuccessResets(t *testing.T) {
	l, mock, _ := newPG(t)
	ip := HashIP("10.0.0.1")
	mock.ExpectExec(`ON CONFLICT \(login, ip_hash\)\s+DO UPDATE SET fail_count=0`).
		WithArgs("a@x.com", ip).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, l.Success(context.Background(), "a@x.com", ip))
	require.NoError(t, mock.ExpectationsWereMet())
}
