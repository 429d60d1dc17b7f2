package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Envelope scopes.
const (
	ScopeUser  = "user"
	ScopeRoom  = "room"
	ScopeEvict = "evict"
)

// Envelope carries one delivery between hub instances. Frame is the encoded
// websocket message; evictions carry no frame.
type Envelope struct {
	Origin     uuid.UUID       `json:"origin"`
	Scope      string          `json:"scope"`
	Target     uuid.UUID       `json:"target"`
	User       uuid.UUID       `json:"user,omitempty"`
	ExceptUser uuid.UUID       `json:"exceptUser,omitempty"`
	ExceptConn uuid.UUID       `json:"exceptConn,omitempty"`
	Event      string          `json:"event,omitempty"`
	Frame      json.RawMessage `json:"frame,omitempty"`
}

// Bus moves envelopes between hub instances so users connected to another
// process still get notified.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers fn for every envelope published on the bus,
	// including the subscriber's own.
	Subscribe(ctx context.Context, fn func(Envelope)) error
	Close() error
}

// LocalBus connects hubs living in the same process. Publish calls every
// subscriber synchronously.
type LocalBus struct {
	mu   sync.RWMutex
	subs []func(Envelope)
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus { return &LocalBus{} }

// Publish implements Bus.
func (b *LocalBus) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(env)
	}
	return nil
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(_ context.Context, fn func(Envelope)) error {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
	return nil
}

// Close implements Bus.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
	return nil
}
