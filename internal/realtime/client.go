package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/conote/internal/model"
)

// Client is one authenticated websocket connection.
type Client struct {
	id    uuid.UUID
	hub   *Hub
	conn  *websocket.Conn
	ident model.Identity
	send  chan []byte
	// rooms maps joined notes to the access granted at join; guarded by hub.mu.
	rooms map[uuid.UUID]model.Access
}

func newClient(h *Hub, conn *websocket.Conn, ident model.Identity) *Client {
	return &Client{
		id:    uuid.Must(uuid.NewV4()),
		hub:   h,
		conn:  conn,
		ident: ident,
		send:  make(chan []byte, h.opts.SendBuffer),
		rooms: map[uuid.UUID]model.Access{},
	}
}

// readPump decodes client frames until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read", zap.String("conn_id", c.id.String()), zap.Error(err))
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.hub.sendError(c, "malformed message", nil)
			continue
		}
		c.handle(ctx, f)
	}
}

func (c *Client) handle(ctx context.Context, f Frame) {
	h := c.hub
	switch f.Event {
	case EventJoinNote, EventLeaveNote:
		var ref NoteRef
		if err := json.Unmarshal(f.Data, &ref); err != nil || ref.NoteID == uuid.Nil {
			h.sendError(c, "noteId is required", nil)
			return
		}
		if f.Event == EventJoinNote {
			h.join(ctx, c, ref.NoteID)
		} else {
			h.leave(c, ref.NoteID)
		}
	case EventContentChange:
		var cc ContentChange
		if err := json.Unmarshal(f.Data, &cc); err != nil {
			h.sendError(c, "malformed content-change", nil)
			return
		}
		h.relayContent(ctx, c, cc)
	case EventCursorPosition:
		var cp CursorPosition
		if err := json.Unmarshal(f.Data, &cp); err != nil {
			h.sendError(c, "malformed cursor-position", nil)
			return
		}
		h.relayCursor(c, cp)
	default:
		h.sendError(c, "unknown event: "+f.Event, nil)
	}
}

// writePump drains send and keeps the connection alive with pings. It exits
// when the hub closes send or a write fails.
func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
