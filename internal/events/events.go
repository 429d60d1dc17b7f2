// Package events publishes the share activity stream.
package events

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ShareActivityTopic is the default topic for share lifecycle events.
const ShareActivityTopic = "conote.share.activity"

// Share lifecycle event types.
const (
	ShareCreated  = "share.created"
	ShareAccepted = "share.accepted"
	ShareDeclined = "share.declined"
	ShareRevoked  = "share.revoked"
)

// ShareEvent is one share state transition.
type ShareEvent struct {
	EventType  string    `json:"eventType"`
	ShareID    uuid.UUID `json:"shareId"`
	NoteID     uuid.UUID `json:"noteId"`
	ActorID    uuid.UUID `json:"actorId"`
	Permission string    `json:"permission,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher sends share events to the activity stream.
type Publisher interface {
	PublishShare(ctx context.Context, ev ShareEvent) error
	Close() error
}

// Nop discards every event. Used when no brokers are configured.
type Nop struct{}

// PublishShare implements Publisher.
func (Nop) PublishShare(context.Context, ShareEvent) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
