package service

import (
	"context"

	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/realtime"
)

// SessionSaver persists deliberate saves emitted by the realtime hub. The hub
// has already relayed the change to the room, so nothing is fanned out here.
type SessionSaver struct {
	notes *NoteServiceImpl
}

// NewSessionSaver constructs a saver over the note store.
func NewSessionSaver(notes *NoteServiceImpl) *SessionSaver {
	return &SessionSaver{notes: notes}
}

// Save implements realtime.SaveFunc.
func (s *SessionSaver) Save(ctx context.Context, req realtime.SaveRequest) (int64, error) {
	content := req.Content
	upd := model.NoteUpdate{Content: &content}
	if req.Title != nil {
		title := *req.Title
		upd.Title = &title
	}
	v, err := s.notes.apply(ctx, req.NoteID, req.UserID, upd)
	if err != nil {
		return 0, err
	}
	return v.Note.Version, nil
}
