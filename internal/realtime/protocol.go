package realtime

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Client to server events.
const (
	EventJoinNote       = "join-note"
	EventLeaveNote      = "leave-note"
	EventContentChange  = "content-change"
	EventCursorPosition = "cursor-position"
)

// Server to client events.
const (
	EventActiveUsers   = "active-users"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventContentUpdate = "content-update"
	EventCursorUpdate  = "cursor-update"
	EventNoteShared    = "note-shared"
	EventNotification  = "notification"
	EventShareUpdated  = "share:updated"
	EventError         = "error"
)

// Notification types carried in Notification.Type.
const (
	NotifyShareAccepted = "share-accepted"
	NotifyShareDeclined = "share-declined"
	NotifyShareRevoked  = "share-revoked"
	NotifyNoteDeleted   = "note-deleted"
)

// Frame is one websocket text message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NoteRef is the payload of join-note and leave-note.
type NoteRef struct {
	NoteID uuid.UUID `json:"noteId"`
}

// ContentChange is sent by an editor. A non-nil Title marks a save.
type ContentChange struct {
	NoteID         uuid.UUID       `json:"noteId"`
	Content        string          `json:"content"`
	Title          *string         `json:"title,omitempty"`
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
}

// CursorPosition is an opaque client cursor.
type CursorPosition struct {
	NoteID   uuid.UUID       `json:"noteId"`
	Position json.RawMessage `json:"position"`
}

// Participant is one user present in a room.
type Participant struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

// ActiveUsers answers a successful join.
type ActiveUsers struct {
	NoteID uuid.UUID     `json:"noteId"`
	Users  []Participant `json:"users"`
}

// Presence is the payload of user-joined and user-left.
type Presence struct {
	NoteID uuid.UUID `json:"noteId"`
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

// ContentUpdate relays a content change to the other room members.
type ContentUpdate struct {
	NoteID         uuid.UUID       `json:"noteId"`
	Content        string          `json:"content"`
	Title          *string         `json:"title,omitempty"`
	Version        int64           `json:"version,omitempty"`
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
	UserID         uuid.UUID       `json:"userId"`
	Timestamp      time.Time       `json:"timestamp"`
}

// CursorUpdate relays a cursor move.
type CursorUpdate struct {
	NoteID    uuid.UUID       `json:"noteId"`
	UserID    uuid.UUID       `json:"userId"`
	Position  json.RawMessage `json:"position"`
	Timestamp time.Time       `json:"timestamp"`
}

// NoteShared tells a recipient about a new invitation.
type NoteShared struct {
	NoteID     uuid.UUID `json:"noteId"`
	Title      string    `json:"title"`
	ShareID    uuid.UUID `json:"shareId"`
	ShareToken string    `json:"shareToken"`
	Permission string    `json:"permission"`
	SharedBy   string    `json:"sharedBy"`
}

// Notification is a generic personal or room notice.
type Notification struct {
	Type    string     `json:"type"`
	NoteID  uuid.UUID  `json:"noteId"`
	ShareID *uuid.UUID `json:"shareId,omitempty"`
	Message string     `json:"message"`
}

// ShareUpdated announces an access list change on a note.
type ShareUpdated struct {
	NoteID     uuid.UUID `json:"noteId"`
	ShareID    uuid.UUID `json:"shareId"`
	Permission string    `json:"permission,omitempty"`
	Accepted   bool      `json:"accepted"`
	Revoked    bool      `json:"revoked"`
}

// ErrorEvent is a connection-scoped failure.
type ErrorEvent struct {
	Message string     `json:"message"`
	NoteID  *uuid.UUID `json:"noteId,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
