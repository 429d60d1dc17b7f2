package service

import (
	"context"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/conote/internal/events"
	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/repository/memstore"
)

type sent struct {
	scope   string // user, room, room-except, evict
	target  uuid.UUID
	except  uuid.UUID
	event   string
	payload any
}

type recordingNotifier struct {
	mu  sync.Mutex
	out []sent
}

var _ Notifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) add(s sent) {
	r.mu.Lock()
	r.out = append(r.out, s)
	r.mu.Unlock()
}

func (r *recordingNotifier) NotifyUser(userID uuid.UUID, event string, payload any) {
	r.add(sent{scope: "user", target: userID, event: event, payload: payload})
}
func (r *recordingNotifier) NotifyRoom(noteID uuid.UUID, event string, payload any) {
	r.add(sent{scope: "room", target: noteID, event: event, payload: payload})
}
func (r *recordingNotifier) NotifyRoomExcept(noteID, userID uuid.UUID, event string, payload any) {
	r.add(sent{scope: "room-except", target: noteID, except: userID, event: event, payload: payload})
}
func (r *recordingNotifier) Evict(noteID, userID uuid.UUID) {
	r.add(sent{scope: "evict", target: noteID, except: userID})
}

func (r *recordingNotifier) find(scope string, target uuid.UUID, event string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.out {
		if s.scope == scope && s.target == target && s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.out = nil
	r.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ShareEvent
}

func (p *recordingPublisher) PublishShare(_ context.Context, ev events.ShareEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type env struct {
	store  *memstore.Store
	auth   *AuthServiceImpl
	notes  *NoteServiceImpl
	shares *ShareServiceImpl
	notify *recordingNotifier
	pub    *recordingPublisher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	e := &env{store: store, notify: &recordingNotifier{}, pub: &recordingPublisher{}}
	e.auth = newAuth(store, &fakeLimiter{allowOK: true})
	e.notes = NewNoteService(store.Users(), store.Notes(), store.Revisions(), store.Shares(), e.notify, nil)
	e.shares = NewShareService(store.Users(), store.Shares(), e.notes, e.notify, e.pub, nil)
	return e
}

func (e *env) user(t *testing.T, name, email string) model.User {
	t.Helper()
	_, u, err := e.auth.Register(context.Background(), name, email, "password1")
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }
