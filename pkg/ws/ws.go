// Package ws keeps the open chat sockets of every signed-in user and pushes
// frames to them.
//
//	hub := ws.NewHub()
//	hub.OnMessage = func(ctx context.Context, c *ws.Client, data []byte) { ... }
//
//	// GET /ws/chat, after AuthenticateWS:
//	hub.Serve(w, r, userID)
//
//	hub.SendToUser(recipientID, ws.Frame{Type: "message", Data: msg})
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorFrame builds an {"type":"error"} frame.
func ErrorFrame(msg string) Frame { return Frame{Type: "error", Message: msg} }

// Client is one open socket.
type Client struct {
	hub    *Hub
	userID uint
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// UserID is the owner of the socket.
func (c *Client) UserID() uint { return c.userID }

// Send queues a frame for this socket only. A full buffer drops it.
func (c *Client) Send(frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("ws: marshal frame", "error", err)
		return false
	}
	return c.push(data)
}

func (c *Client) push(data []byte) (ok bool) {
	defer func() {
		// send is closed once the client is gone.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		logger.Warn("ws: send buffer full, frame dropped", "user_id", c.userID)
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("ws: unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}
		if h := c.hub.OnMessage; h != nil {
			h(ctx, c, msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub indexes open sockets by user. A user may have several tabs open.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}

	upgrader websocket.Upgrader

	// OnMessage handles every inbound frame. It runs on the socket's read
	// goroutine.
	OnMessage func(ctx context.Context, c *Client, data []byte)
}

// NewHub returns an empty hub that accepts any origin.
func NewHub() *Hub {
	return &Hub{
		clients: map[uint]map[*Client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetCheckOrigin restricts which origins may connect.
func (h *Hub) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// Serve upgrades the request and registers the socket for userID. The
// pumps outlive the request; ctx only carries the logger and request id.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithCtx(r.Context()).Warn("ws: upgrade failed", "error", err)
		return
	}
	c := &Client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)

	ctx := context.WithoutCancel(r.Context())
	go c.writePump()
	go c.readPump(ctx)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = map[*Client]struct{}{}
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logger.Debug("ws: client connected", "user_id", c.userID)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if ok {
		if _, present := set[c]; present {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
		} else {
			ok = false
		}
	}
	h.mu.Unlock()

	if ok {
		c.close()
		metrics.WSConnections.Dec()
		logger.Debug("ws: client disconnected", "user_id", c.userID)
	}
}

// Subscribe registers a socketless listener for userID, such as a
// server-sent event stream. Frames arrive as JSON on the returned channel,
// which is closed by cancel or Close.
func (h *Hub) Subscribe(userID uint) (<-chan []byte, func()) {
	c := &Client{hub: h, userID: userID, send: make(chan []byte, sendBuffer)}
	h.add(c)
	return c.send, func() { h.remove(c) }
}

// SendToUser pushes frame to every socket of userID and reports how many
// accepted it.
func (h *Hub) SendToUser(userID uint, frame any) int {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("ws: marshal frame", "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.push(data) {
			n++
		}
	}
	return n
}

// Online reports whether userID has at least one open socket.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ClientCount is the number of open sockets across all users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = map[uint]map[*Client]struct{}{}
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
			metrics.WSConnections.Dec()
		}
	}
}
