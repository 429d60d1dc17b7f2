package service

import "github.com/gofrs/uuid/v5"

// Notifier fans service-side changes out to live connections. The realtime
// hub implements it; delivery is at-most-once.
type Notifier interface {
	// NotifyUser delivers to every connection of userID.
	NotifyUser(userID uuid.UUID, event string, payload any)
	// NotifyRoom delivers to every member of the note's room.
	NotifyRoom(noteID uuid.UUID, event string, payload any)
	// NotifyRoomExcept delivers to room members other than userID.
	NotifyRoomExcept(noteID, userID uuid.UUID, event string, payload any)
	// Evict removes userID's connections from the note's room.
	Evict(noteID, userID uuid.UUID)
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(uuid.UUID, string, any)                 {}
func (NopNotifier) NotifyRoom(uuid.UUID, string, any)                 {}
func (NopNotifier) NotifyRoomExcept(uuid.UUID, uuid.UUID, string, any) {}
func (NopNotifier) Evict(uuid.UUID, uuid.UUID)                        {}
