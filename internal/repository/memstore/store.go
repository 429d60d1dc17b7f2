// Package memstore is a process-local implementation of the repository
// interfaces. It backs the "memory" database driver and service tests.
package memstore

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/conote/internal/model"
)

// Store holds every table behind one mutex. Use the Users, Notes, Revisions
// and Shares views to get repository implementations.
type Store struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*model.User
	notes     map[uuid.UUID]*model.Note
	revisions map[uuid.UUID][]model.Revision
	shares    map[uuid.UUID]*model.Share
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     map[uuid.UUID]*model.User{},
		notes:     map[uuid.UUID]*model.Note{},
		revisions: map[uuid.UUID][]model.Revision{},
		shares:    map[uuid.UUID]*model.Share{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Notes returns the note repository view.
func (s *Store) Notes() *NoteRepo { return &NoteRepo{s: s} }

// Revisions returns the revision repository view.
func (s *Store) Revisions() *RevisionRepo { return &RevisionRepo{s: s} }

// Shares returns the share repository view.
func (s *Store) Shares() *ShareRepo { return &ShareRepo{s: s} }

func sortByUpdatedDesc[T any](xs []T, at func(T) time.Time) {
	slices.SortStableFunc(xs, func(a, b T) int { return at(b).Compare(at(a)) })
}

func byVersionDesc(a, b model.Revision) int { return cmp.Compare(b.Version, a.Version) }

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func emailEq(a *string, b string) bool {
	return a != nil && strings.EqualFold(*a, b)
}
