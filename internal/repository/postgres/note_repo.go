package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// NoteRepo implements NoteRepository and RevisionRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

const noteCols = `n.id, n.owner_id, n.title, n.content, n.version, n.is_archived, n.created_at, n.updated_at`

func scanNote(row scanner, extra ...any) (*model.Note, error) {
	var n model.Note
	dest := append([]any{&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.Version, &n.IsArchived,
		&n.CreatedAt, &n.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotes(rows pgx.Rows) ([]model.Note, error) {
	defer rows.Close()
	var out []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func collectViews(rows pgx.Rows) ([]model.NoteView, error) {
	defer rows.Close()
	var out []model.NoteView
	for rows.Next() {
		var role, perm string
		n, err := scanNote(rows, &role, &perm)
		if err != nil {
			return nil, err
		}
		out = append(out, model.NoteView{
			Note:   *n,
			Access: model.Access{Role: model.AccessRole(role), Permission: model.Permission(perm)},
		})
	}
	return out, rows.Err()
}

// Create inserts the note and its initial revision in one transaction.
func (r *NoteRepo) Create(ctx context.Context, n *model.Note, initial model.Revision) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer rollbackOrCommit(ctx, tx, &err)

	const ins = `
INSERT INTO notes (id, owner_id, title, content, version, is_archived)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	if err = tx.QueryRow(ctx, ins, n.ID, n.OwnerID, n.Title, n.Content, n.Version, n.IsArchived).
		Scan(&n.CreatedAt, &n.UpdatedAt); err != nil {
		return err
	}

	const rev = `INSERT INTO revisions (id, note_id, version, content, author_id) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.Exec(ctx, rev, initial.ID, n.ID, initial.Version, initial.Content, initial.AuthorID); err != nil {
		return err
	}
	return nil
}

// Get returns a note by id.
func (r *NoteRepo) Get(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	n, err := scanNote(r.db.Pool.QueryRow(ctx, `SELECT `+noteCols+` FROM notes n WHERE n.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// ApplyUpdate locks the note row and writes the new state. A content change
// bumps the version and records the new head in the ledger. Concurrent
// writers serialize on the row lock, so every committed content keeps its
// own version.
func (r *NoteRepo) ApplyUpdate(
	ctx context.Context, id, authorID uuid.UUID, upd model.NoteUpdate,
) (n *model.Note, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer rollbackOrCommit(ctx, tx, &err)

	n, err = scanNote(tx.QueryRow(ctx, `SELECT `+noteCols+` FROM notes n WHERE n.id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = errs.ErrNotFound
		}
		return nil, err
	}

	if upd.Content != nil && (upd.ForceRevision || *upd.Content != n.Content) {
		// the head is normally in the ledger already; rows written before
		// head snapshots existed are backfilled here
		if err = snapshot(ctx, tx, n, authorID); err != nil {
			return nil, err
		}
		n.Version++
		n.Content = *upd.Content
		if err = snapshot(ctx, tx, n, authorID); err != nil {
			return nil, err
		}
	}
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.IsArchived != nil {
		n.IsArchived = *upd.IsArchived
	}

	const save = `
UPDATE notes SET title=$2, content=$3, version=$4, is_archived=$5, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	if err = tx.QueryRow(ctx, save, n.ID, n.Title, n.Content, n.Version, n.IsArchived).Scan(&n.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// snapshot writes n's current content to the ledger. A version that is
// already recorded is left as is.
func snapshot(ctx context.Context, tx pgx.Tx, n *model.Note, authorID uuid.UUID) error {
	revID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	const q = `
INSERT INTO revisions (id, note_id, version, content, author_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (note_id, version) DO NOTHING`
	_, err = tx.Exec(ctx, q, revID, n.ID, n.Version, n.Content, authorID)
	return err
}

// Delete cascades revisions, shares and the note inside one transaction.
// The failing step is named in the returned error.
func (r *NoteRepo) Delete(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer rollbackOrCommit(ctx, tx, &err)

	if _, err = tx.Exec(ctx, `DELETE FROM revisions WHERE note_id=$1`, id); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM shares WHERE note_id=$1`, id); err != nil {
		return fmt.Errorf("delete shares: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM notes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = errs.ErrNotFound
		return err
	}
	return nil
}

// ListOwned returns notes owned by ownerID, most recently updated first.
func (r *NoteRepo) ListOwned(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]model.Note, error) {
	const q = `SELECT ` + noteCols + ` FROM notes n
WHERE n.owner_id=$1 AND ($2 OR NOT n.is_archived)
ORDER BY n.updated_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, includeArchived)
	if err != nil {
		return nil, err
	}
	return collectNotes(rows)
}

// ListSharedWith returns notes reachable through accepted, non-revoked shares.
func (r *NoteRepo) ListSharedWith(ctx context.Context, userID uuid.UUID) ([]model.NoteView, error) {
	const q = `SELECT ` + noteCols + `, 'shared', s.permission
FROM notes n JOIN shares s ON s.note_id = n.id
WHERE s.recipient_user_id=$1 AND s.is_accepted AND NOT s.is_revoked AND n.owner_id <> $1
ORDER BY n.updated_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collectViews(rows)
}

// Search unions owned and actively shared non-archived notes whose title or
// content contains query, ignoring case.
func (r *NoteRepo) Search(ctx context.Context, userID uuid.UUID, query string) ([]model.NoteView, error) {
	const q = `SELECT ` + noteCols + `, 'owner', 'edit'
FROM notes n
WHERE n.owner_id=$1 AND NOT n.is_archived
  AND (n.title ILIKE $2 ESCAPE '\' OR n.content ILIKE $2 ESCAPE '\')
UNION ALL
SELECT ` + noteCols + `, 'shared', s.permission
FROM notes n JOIN shares s ON s.note_id = n.id
WHERE s.recipient_user_id=$1 AND s.is_accepted AND NOT s.is_revoked
  AND n.owner_id <> $1 AND NOT n.is_archived
  AND (n.title ILIKE $2 ESCAPE '\' OR n.content ILIKE $2 ESCAPE '\')
ORDER BY updated_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID, containsPattern(query))
	if err != nil {
		return nil, err
	}
	return collectViews(rows)
}

// ListBefore returns the note's revisions below a version, newest first.
func (r *NoteRepo) ListBefore(ctx context.Context, noteID uuid.UUID, below int64) ([]model.Revision, error) {
	const q = `
SELECT id, note_id, version, content, author_id, created_at
FROM revisions WHERE note_id=$1 AND version<$2
ORDER BY version DESC`
	rows, err := r.db.Pool.Query(ctx, q, noteID, below)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Revision
	for rows.Next() {
		var rv model.Revision
		if err = rows.Scan(&rv.ID, &rv.NoteID, &rv.Version, &rv.Content, &rv.AuthorID, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// GetRevision returns a single revision of a note.
func (r *NoteRepo) GetRevision(ctx context.Context, noteID, revisionID uuid.UUID) (*model.Revision, error) {
	const q = `
SELECT id, note_id, version, content, author_id, created_at
FROM revisions WHERE id=$1 AND note_id=$2`
	var rv model.Revision
	err := r.db.Pool.QueryRow(ctx, q, revisionID, noteID).
		Scan(&rv.ID, &rv.NoteID, &rv.Version, &rv.Content, &rv.AuthorID, &rv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rv, nil
}

// Revisions exposes the ledger half of the repository.
func (r *NoteRepo) Revisions() *RevisionRepo { return &RevisionRepo{notes: r} }

// RevisionRepo adapts NoteRepo to RevisionRepository.
type RevisionRepo struct{ notes *NoteRepo }

// ListBefore delegates to NoteRepo.ListBefore.
func (r *RevisionRepo) ListBefore(ctx context.Context, noteID uuid.UUID, below int64) ([]model.Revision, error) {
	return r.notes.ListBefore(ctx, noteID, below)
}

// Get delegates to NoteRepo.GetRevision.
func (r *RevisionRepo) Get(ctx context.Context, noteID, revisionID uuid.UUID) (*model.Revision, error) {
	return r.notes.GetRevision(ctx, noteID, revisionID)
}
