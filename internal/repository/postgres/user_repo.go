package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, name, email, pwd_hash, pwd_salt, profile_picture, role, provider, COALESCE(provider_id, ''), created_at`

func scanUser(row scanner) (*model.User, error) {
	var (
		u        model.User
		role     string
		provider string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PwdHash, &u.PwdSalt, &u.ProfilePicture,
		&role, &provider, &u.ProviderID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Provider = model.Provider(provider)
	return &u, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, name, email, pwd_hash, pwd_salt, profile_picture, role, provider, provider_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Name, u.Email, u.PwdHash, u.PwdSalt, u.ProfilePicture,
		string(u.Role), string(u.Provider), nullIfEmpty(u.ProviderID))
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email)
}

// GetByProvider selects a user by external identity.
func (r *UserRepo) GetByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE provider=$1 AND provider_id=$2`,
		string(provider), providerID)
}

// LinkProvider records the external identity on an existing account.
func (r *UserRepo) LinkProvider(ctx context.Context, id uuid.UUID, provider model.Provider, providerID string) error {
	const q = `UPDATE users SET provider=$2, provider_id=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(provider), providerID)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
