package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// ShareRepo implements ShareRepository using PostgreSQL.
type ShareRepo struct{ db *DB }

// NewShareRepo constructs a share repository.
func NewShareRepo(db *DB) *ShareRepo { return &ShareRepo{db: db} }

const shareCols = `s.id, s.note_id, s.recipient_user_id, s.recipient_email, s.permission,
s.is_accepted, s.is_revoked, s.share_token, s.created_at, s.updated_at`

func scanShare(row scanner) (*model.Share, error) {
	var (
		s    model.Share
		perm string
	)
	if err := row.Scan(&s.ID, &s.NoteID, &s.RecipientUserID, &s.RecipientEmail, &perm,
		&s.IsAccepted, &s.IsRevoked, &s.ShareToken, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Permission = model.Permission(perm)
	return &s, nil
}

func collectShares(rows pgx.Rows) ([]model.Share, error) {
	defer rows.Close()
	var out []model.Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Create inserts a pending share.
func (r *ShareRepo) Create(ctx context.Context, s *model.Share) error {
	const q = `
INSERT INTO shares (id, note_id, recipient_user_id, recipient_email, permission, share_token)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, s.ID, s.NoteID, s.RecipientUserID, s.RecipientEmail,
		string(s.Permission), s.ShareToken).Scan(&s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func (r *ShareRepo) getOne(ctx context.Context, q string, arg any) (*model.Share, error) {
	s, err := scanShare(r.db.Pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Get selects a share by id.
func (r *ShareRepo) Get(ctx context.Context, id uuid.UUID) (*model.Share, error) {
	return r.getOne(ctx, `SELECT `+shareCols+` FROM shares s WHERE s.id=$1`, id)
}

// GetByToken selects a share by its acceptance token.
func (r *ShareRepo) GetByToken(ctx context.Context, token string) (*model.Share, error) {
	return r.getOne(ctx, `SELECT `+shareCols+` FROM shares s WHERE s.share_token=$1`, token)
}

// ListByNote returns every share row of a note.
func (r *ShareRepo) ListByNote(ctx context.Context, noteID uuid.UUID) ([]model.Share, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+shareCols+` FROM shares s WHERE s.note_id=$1 ORDER BY s.created_at`, noteID)
	if err != nil {
		return nil, err
	}
	return collectShares(rows)
}

// ListByOwner returns live shares on notes owned by ownerID.
func (r *ShareRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Share, error) {
	const q = `SELECT ` + shareCols + `
FROM shares s JOIN notes n ON n.id = s.note_id
WHERE n.owner_id=$1 AND NOT s.is_revoked
ORDER BY s.created_at`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	return collectShares(rows)
}

// ListPending returns open invitations for a user, joined with the note and
// the owner's display name.
func (r *ShareRepo) ListPending(ctx context.Context, userID uuid.UUID, email string) ([]model.PendingShare, error) {
	const q = `SELECT ` + noteCols + `, s.id, s.share_token, s.permission, s.created_at, u.name
FROM shares s
JOIN notes n ON n.id = s.note_id
JOIN users u ON u.id = n.owner_id
WHERE NOT s.is_accepted AND NOT s.is_revoked
  AND (s.recipient_user_id=$1 OR (s.recipient_user_id IS NULL AND lower(s.recipient_email)=lower($2)))
ORDER BY s.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingShare
	for rows.Next() {
		var (
			p    model.PendingShare
			perm string
		)
		n, err := scanNote(rows, &p.ShareID, &p.ShareToken, &perm, &p.CreatedAt, &p.SharedBy)
		if err != nil {
			return nil, err
		}
		p.Note = *n
		p.Permission = model.Permission(perm)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Accept moves a pending share to accepted and binds the recipient.
func (r *ShareRepo) Accept(ctx context.Context, id, userID uuid.UUID) error {
	const q = `
UPDATE shares SET is_accepted=true, recipient_user_id=$2, updated_at=now()
WHERE id=$1 AND NOT is_accepted AND NOT is_revoked`
	tag, err := r.db.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrVersionConflict
	}
	return nil
}

// Revoke sets the terminal revoked flag.
func (r *ShareRepo) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE shares SET is_revoked=true, updated_at=now() WHERE id=$1 AND NOT is_revoked`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// BindEmail attaches pending email-only shares to a user id.
func (r *ShareRepo) BindEmail(ctx context.Context, email string, userID uuid.UUID) (int64, error) {
	const q = `
UPDATE shares SET recipient_user_id=$2, updated_at=now()
WHERE recipient_user_id IS NULL AND lower(recipient_email)=lower($1) AND NOT is_revoked`
	tag, err := r.db.Pool.Exec(ctx, q, email, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
