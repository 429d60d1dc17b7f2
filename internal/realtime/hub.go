// Package realtime is the session and presence broadcaster: note rooms,
// personal channels and content/cursor relays over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/conote/internal/bearer"
	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/model"
)

// Authenticator validates the credential presented at connect time.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

// AccessChecker answers whether a user may see or edit a note.
type AccessChecker interface {
	Access(ctx context.Context, noteID, userID uuid.UUID) (model.Access, error)
}

// SaveRequest is a deliberate save made from a live session.
type SaveRequest struct {
	NoteID  uuid.UUID
	UserID  uuid.UUID
	Content string
	Title   *string
}

// SaveFunc persists a save and returns the resulting note version.
type SaveFunc func(ctx context.Context, req SaveRequest) (int64, error)

// Options tunes connection handling.
type Options struct {
	SendBuffer     int
	AllowedOrigins []string
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SaveTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 10 * time.Second
	}
	return o
}

// Hub owns every live connection of this process. Room membership and
// personal channels are tracked per instance; deliveries that must reach
// other instances travel over the Bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	users   map[uuid.UUID]map[*Client]struct{}
	rooms   map[uuid.UUID]map[*Client]struct{}

	instance uuid.UUID
	auth     Authenticator
	access   AccessChecker
	save     SaveFunc
	bus      Bus
	metrics  *Metrics
	log      *zap.Logger
	opts     Options
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHub constructs a hub. A nil bus keeps deliveries in-process.
func NewHub(auth Authenticator, acc AccessChecker, bus Bus, metrics *Metrics, log *zap.Logger, opts Options) *Hub {
	if bus == nil {
		bus = NewLocalBus()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		clients:  map[uuid.UUID]*Client{},
		users:    map[uuid.UUID]map[*Client]struct{}{},
		rooms:    map[uuid.UUID]map[*Client]struct{}{},
		instance: uuid.Must(uuid.NewV4()),
		auth:     auth,
		access:   acc,
		bus:      bus,
		metrics:  metrics,
		log:      log,
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// OnSave installs the subscriber that persists deliberate saves.
func (h *Hub) OnSave(fn SaveFunc) { h.save = fn }

// Start subscribes the hub to the bus.
func (h *Hub) Start(ctx context.Context) error {
	return h.bus.Subscribe(ctx, h.receive)
}

// Close drops every connection and closes the bus.
func (h *Hub) Close() error {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
	return h.bus.Close()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.opts.AllowedOrigins, origin)
}

// tokenFromRequest reads the credential from the token query parameter or
// an Authorization bearer header.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	tok, _ := bearer.FromHeader(r)
	return tok
}

// ServeHTTP authenticates and upgrades the request, then serves the
// connection until it closes. A bad credential is answered with 401 and
// no upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}
	ident, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(h, conn, ident)
	h.register(c)
	go c.writePump()
	c.readPump(r.Context())
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	set, ok := h.users[c.ident.UserID]
	if !ok {
		set = map[*Client]struct{}{}
		h.users[c.ident.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.Connections.Inc()
	h.log.Debug("connected", zap.String("user_id", c.ident.UserID.String()), zap.String("conn_id", c.id.String()))
}

// unregister leaves every room, drops the connection and closes its send
// channel. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	left := make([]uuid.UUID, 0, len(c.rooms))
	for noteID := range c.rooms {
		if h.removeFromRoomLocked(c, noteID) {
			left = append(left, noteID)
		}
	}
	delete(h.clients, c.id)
	if set := h.users[c.ident.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.ident.UserID)
		}
	}
	close(c.send)
	h.mu.Unlock()

	h.metrics.Connections.Dec()
	for _, noteID := range left {
		h.announceLeft(noteID, c.ident)
	}
	h.log.Debug("disconnected", zap.String("user_id", c.ident.UserID.String()), zap.String("conn_id", c.id.String()))
}

// removeFromRoomLocked removes c from a room and reports whether c's user
// has no other connection left in it.
func (h *Hub) removeFromRoomLocked(c *Client, noteID uuid.UUID) bool {
	delete(c.rooms, noteID)
	members := h.rooms[noteID]
	if members == nil {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, noteID)
		h.metrics.Rooms.Dec()
	}
	return !h.userInRoomLocked(noteID, c.ident.UserID)
}

func (h *Hub) userInRoomLocked(noteID, userID uuid.UUID) bool {
	for m := range h.rooms[noteID] {
		if m.ident.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) participantsLocked(noteID uuid.UUID) []Participant {
	seen := map[uuid.UUID]bool{}
	out := []Participant{}
	for m := range h.rooms[noteID] {
		if seen[m.ident.UserID] {
			continue
		}
		seen[m.ident.UserID] = true
		out = append(out, Participant{UserID: m.ident.UserID, Name: m.ident.Name})
	}
	slices.SortFunc(out, func(a, b Participant) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})
	return out
}

// join re-checks access before adding c to the room.
func (h *Hub) join(ctx context.Context, c *Client, noteID uuid.UUID) {
	acc, err := h.access.Access(ctx, noteID, c.ident.UserID)
	if err != nil {
		h.sendError(c, joinError(err), &noteID)
		return
	}

	h.mu.Lock()
	if _, live := h.clients[c.id]; !live {
		h.mu.Unlock()
		return
	}
	fresh := !h.userInRoomLocked(noteID, c.ident.UserID)
	members, ok := h.rooms[noteID]
	if !ok {
		members = map[*Client]struct{}{}
		h.rooms[noteID] = members
		h.metrics.Rooms.Inc()
	}
	members[c] = struct{}{}
	c.rooms[noteID] = acc
	users := h.participantsLocked(noteID)
	h.mu.Unlock()

	h.sendTo(c, EventActiveUsers, ActiveUsers{NoteID: noteID, Users: users})
	if fresh {
		h.publishRoom(noteID, uuid.Nil, c.id, EventUserJoined,
			Presence{NoteID: noteID, UserID: c.ident.UserID, Name: c.ident.Name})
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrForbidden):
		return "note not found"
	default:
		return "could not join note"
	}
}

func (h *Hub) leave(c *Client, noteID uuid.UUID) {
	h.mu.Lock()
	last := h.removeFromRoomLocked(c, noteID)
	h.mu.Unlock()
	if last {
		h.announceLeft(noteID, c.ident)
	}
}

func (h *Hub) announceLeft(noteID uuid.UUID, who model.Identity) {
	h.publishRoom(noteID, uuid.Nil, uuid.Nil, EventUserLeft,
		Presence{NoteID: noteID, UserID: who.UserID, Name: who.Name})
}

// roomAccess returns the access c was granted at join time.
func (h *Hub) roomAccess(c *Client, noteID uuid.UUID) (model.Access, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	acc, ok := c.rooms[noteID]
	return acc, ok
}

// relayContent broadcasts an edit to the other room members. Changes from
// connections outside the room are dropped silently. A change carrying a
// title is a save and is persisted before it is relayed.
func (h *Hub) relayContent(ctx context.Context, c *Client, cc ContentChange) {
	acc, ok := h.roomAccess(c, cc.NoteID)
	if !ok {
		return
	}
	if !acc.CanWrite() {
		h.sendError(c, "you have read-only access to this note", &cc.NoteID)
		return
	}
	upd := ContentUpdate{
		NoteID:         cc.NoteID,
		Content:        cc.Content,
		Title:          cc.Title,
		CursorPosition: cc.CursorPosition,
		UserID:         c.ident.UserID,
		Timestamp:      h.now(),
	}
	if cc.Title != nil && h.save != nil {
		sctx, cancel := context.WithTimeout(ctx, h.opts.SaveTimeout)
		ver, err := h.save(sctx, SaveRequest{NoteID: cc.NoteID, UserID: c.ident.UserID, Content: cc.Content, Title: cc.Title})
		cancel()
		if err != nil {
			h.log.Warn("session save failed", zap.String("note_id", cc.NoteID.String()), zap.Error(err))
			h.sendError(c, saveError(err), &cc.NoteID)
			return
		}
		upd.Version = ver
	}
	h.publishRoom(cc.NoteID, uuid.Nil, c.id, EventContentUpdate, upd)
}

func saveError(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && !errors.Is(err, errs.ErrInternal) {
		return e.Error()
	}
	return "could not save note"
}

func (h *Hub) relayCursor(c *Client, cp CursorPosition) {
	if _, ok := h.roomAccess(c, cp.NoteID); !ok {
		return
	}
	h.publishRoom(cp.NoteID, uuid.Nil, c.id, EventCursorUpdate, CursorUpdate{
		NoteID:    cp.NoteID,
		UserID:    c.ident.UserID,
		Position:  cp.Position,
		Timestamp: h.now(),
	})
}

// NotifyUser delivers to every connection of userID, on any instance.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.dispatch(Envelope{Scope: ScopeUser, Target: userID, Event: event, Frame: frame})
}

// NotifyRoom delivers to every member of the note's room.
func (h *Hub) NotifyRoom(noteID uuid.UUID, event string, payload any) {
	h.publishRoom(noteID, uuid.Nil, uuid.Nil, event, payload)
}

// NotifyRoomExcept delivers to room members other than userID.
func (h *Hub) NotifyRoomExcept(noteID, userID uuid.UUID, event string, payload any) {
	h.publishRoom(noteID, userID, uuid.Nil, event, payload)
}

// Evict removes userID's connections from the note's room and tells the
// remaining members the user left.
func (h *Hub) Evict(noteID, userID uuid.UUID) {
	h.dispatch(Envelope{Scope: ScopeEvict, Target: noteID, User: userID})
}

func (h *Hub) publishRoom(noteID, exceptUser, exceptConn uuid.UUID, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.dispatch(Envelope{
		Scope: ScopeRoom, Target: noteID, ExceptUser: exceptUser, ExceptConn: exceptConn,
		Event: event, Frame: frame,
	})
}

func (h *Hub) encode(event string, payload any) (json.RawMessage, bool) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

// dispatch delivers locally before returning and forwards to the other
// instances over the bus.
func (h *Hub) dispatch(env Envelope) {
	env.Origin = h.instance
	h.deliver(env)
	if err := h.bus.Publish(context.Background(), env); err != nil {
		h.log.Warn("bus publish failed", zap.String("scope", env.Scope), zap.Error(err))
	}
}

func (h *Hub) receive(env Envelope) {
	if env.Origin == h.instance {
		return
	}
	h.deliver(env)
}

func (h *Hub) deliver(env Envelope) {
	switch env.Scope {
	case ScopeUser:
		h.mu.RLock()
		for c := range h.users[env.Target] {
			h.enqueue(c, env.Event, env.Frame)
		}
		h.mu.RUnlock()
	case ScopeRoom:
		h.mu.RLock()
		for c := range h.rooms[env.Target] {
			if c.id == env.ExceptConn || c.ident.UserID == env.ExceptUser {
				continue
			}
			h.enqueue(c, env.Event, env.Frame)
		}
		h.mu.RUnlock()
	case ScopeEvict:
		h.evictLocal(env.Target, env.User)
	}
}

func (h *Hub) evictLocal(noteID, userID uuid.UUID) {
	h.mu.Lock()
	var evicted *Client
	for c := range h.rooms[noteID] {
		if c.ident.UserID == userID {
			h.removeFromRoomLocked(c, noteID)
			evicted = c
		}
	}
	h.mu.Unlock()
	if evicted == nil {
		return
	}
	// local only: every instance runs its own eviction
	frame, ok := h.encode(EventUserLeft, Presence{NoteID: noteID, UserID: userID, Name: evicted.ident.Name})
	if !ok {
		return
	}
	h.deliver(Envelope{Scope: ScopeRoom, Target: noteID, Event: EventUserLeft, Frame: frame})
}

// enqueue never blocks: a full send buffer drops the message. Caller holds
// at least the read lock, so c.send is open.
func (h *Hub) enqueue(c *Client, event string, frame []byte) {
	select {
	case c.send <- frame:
		h.metrics.Events.WithLabelValues(event).Inc()
	default:
		h.metrics.Dropped.Inc()
		h.log.Warn("send buffer full, dropping", zap.String("conn_id", c.id.String()))
	}
}

func (h *Hub) sendTo(c *Client, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	if _, live := h.clients[c.id]; live {
		h.enqueue(c, event, frame)
	}
	h.mu.RUnlock()
}

func (h *Hub) sendError(c *Client, msg string, noteID *uuid.UUID) {
	h.sendTo(c, EventError, ErrorEvent{Message: msg, NoteID: noteID})
}
