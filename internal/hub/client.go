package hub

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // commands may carry base64 audio
	sendQueueSize  = 32
)

// Client is one websocket connection attached to the hub. Its role is unset
// until the peer sends a registration message and is fixed afterwards. The
// role field is touched only from the read pump goroutine.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	role string
	name string
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// TrySend queues msg for delivery without blocking. It reports false when the
// queue is full or the client is closed.
func (c *Client) TrySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close shuts the client down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// run services the connection until the peer goes away, then cleans up its
// registry slot.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Remove(c)
		c.Close()
		if c.role != "" {
			log.Printf("[hub] %s disconnected: %s", c.role, c.id)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[hub] read error: %v", err)
			}
			return
		}
		c.handleMessage(bytes.TrimSpace(raw))
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
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[hub] write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage applies the routing rules: registration first, then role-based
// forwarding. Anything that is not valid JSON is passed through raw so a
// malformed peer does not lose its connection.
func (c *Client) handleMessage(raw []byte) {
	if len(raw) == 0 {
		return
	}

	if !json.Valid(raw) {
		c.handleRawText(raw)
		return
	}

	// Non-object JSON decodes to a nil map and falls through to routing.
	var msg map[string]any
	_ = json.Unmarshal(raw, &msg)

	if t, _ := msg["type"].(string); t == "register" {
		c.handleRegister(msg)
		return
	}

	switch c.role {
	case event.RoleUI:
		c.forwardToDevice(raw)
	case event.RoleDevice:
		c.hub.Broadcast(raw)
	default:
		c.sendNotRegistered()
	}
}

func (c *Client) handleRegister(msg map[string]any) {
	role, _ := msg["role"].(string)
	name, _ := msg["name"].(string)

	if c.role != "" && c.role != role {
		// A connection's role is fixed for its lifetime.
		c.sendJSON(map[string]any{"error": "already_registered", "role": c.role})
		return
	}

	switch role {
	case event.RoleDevice:
		c.role = event.RoleDevice
		c.name = name
		c.hub.SetDevice(c)
		c.sendJSON(map[string]any{"ok": true, "role": event.RoleDevice})
		log.Printf("[hub] device registered: %s", c.id)
	case event.RoleUI:
		c.role = event.RoleUI
		c.name = name
		c.hub.AddUI(c)
		c.sendJSON(map[string]any{"ok": true, "role": event.RoleUI})
		log.Printf("[hub] ui registered: %s (%s)", c.id, name)
	default:
		c.sendNotRegistered()
	}
}

// handleRawText keeps non-JSON traffic flowing in the same direction as JSON:
// device text is wrapped so UIs still receive something parseable, UI text is
// handed to the device unmodified.
func (c *Client) handleRawText(text []byte) {
	switch c.role {
	case event.RoleDevice:
		wrapped, err := json.Marshal(map[string]any{"type": "raw", "text": string(text)})
		if err != nil {
			return
		}
		c.hub.Broadcast(wrapped)
	case event.RoleUI:
		if d := c.hub.Device(); d != nil {
			d.TrySend(text)
		}
	}
}

func (c *Client) forwardToDevice(raw []byte) {
	d := c.hub.Device()
	if d == nil {
		c.sendJSON(map[string]any{"error": "no_device_connected"})
		return
	}
	if !d.TrySend(raw) {
		c.sendJSON(map[string]any{"error": "failed_to_send_to_device", "detail": "device send queue unavailable"})
	}
}

func (c *Client) sendNotRegistered() {
	c.sendJSON(map[string]any{
		"error":  "not_registered",
		"expect": map[string]string{"type": "register", "role": "device|ui"},
	})
}

func (c *Client) sendJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("[hub] failed to marshal reply: %v", err)
		return
	}
	c.TrySend(msg)
}
