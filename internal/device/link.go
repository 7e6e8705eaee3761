package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
	"github.com/VittorioRossetto/dogTrainer/internal/retry"
)

const writeWait = 10 * time.Second

// Link maintains the device's connection to the hub: it registers with the
// device role, feeds inbound commands to a handler, and publishes event
// envelopes. Connection loss triggers the fixed-interval retry policy; while
// the socket is down, events fall back to an HTTP POST when configured.
type Link struct {
	wsURL     string
	name      string
	statusURL string
	policy    retry.Policy
	handler   func(event.Command)
	client    *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewLink builds a link that will dial wsURL and register under name.
func NewLink(wsURL, name string, policy retry.Policy) *Link {
	return &Link{
		wsURL:  wsURL,
		name:   name,
		policy: policy,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

// OnCommand registers the inbound command handler. Must be called before Run.
func (l *Link) OnCommand(fn func(event.Command)) {
	l.handler = fn
}

// SetStatusFallback enables HTTP fallback delivery to the hub's status
// ingestion endpoint for events emitted while the socket is down.
func (l *Link) SetStatusFallback(statusURL string) {
	l.statusURL = statusURL
}

// Run dials and serves the hub connection until ctx is cancelled, going
// through the retry policy on every disconnect.
func (l *Link) Run(ctx context.Context) error {
	return l.policy.Run(ctx, l.connectAndServe)
}

func (l *Link) connectAndServe(ctx context.Context) error {
	log.Printf("[device] connecting to %s", l.wsURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		log.Printf("[device] dial failed: %v", err)
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reg := event.Registration{Type: "register", Role: event.RoleDevice, Name: l.name}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(reg); err != nil {
		return fmt.Errorf("register with hub: %w", err)
	}

	l.setConn(conn)
	defer l.setConn(nil)
	log.Printf("[device] connected to hub")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[device] hub connection lost: %v", err)
			return err
		}
		l.handleInbound(bytes.TrimSpace(raw))
	}
}

func (l *Link) handleInbound(raw []byte) {
	var cmd event.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Printf("[device] ignoring non-JSON message from hub: %s", raw)
		return
	}

	if cmd.Cmd == "" {
		// Registration acks and hub error replies land here.
		var reply struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &reply) == nil && reply.Error != "" {
			log.Printf("[device] hub error reply: %s", reply.Error)
		}
		return
	}

	if l.handler != nil {
		l.handler(cmd)
	}
}

// Emit publishes env to the hub, satisfying session.EventSink. Delivery is
// at-most-once: when both the socket and the HTTP fallback are unavailable
// the event is dropped with a log line.
func (l *Link) Emit(env event.Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		log.Printf("[device] failed to marshal event %s: %v", env.Event, err)
		return
	}

	if l.trySendWS(msg) {
		return
	}

	if l.statusURL != "" {
		if err := l.postFallback(msg); err != nil {
			log.Printf("[device] event %s lost (ws down, fallback failed: %v)", env.Event, err)
		}
		return
	}

	log.Printf("[device] event %s dropped, no hub connection", env.Event)
}

func (l *Link) trySendWS(msg []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return false
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Printf("[device] send failed: %v", err)
		return false
	}
	return true
}

func (l *Link) postFallback(msg []byte) error {
	resp, err := l.client.Post(l.statusURL, "application/json", bytes.NewReader(msg))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (l *Link) setConn(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

// StatusURLFromWS derives the hub's HTTP status-ingestion URL from its
// websocket URL, e.g. ws://host:3000/ws -> http://host:3000/api/status.
func StatusURLFromWS(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unexpected hub url scheme %q", u.Scheme)
	}
	u.Path = "/api/status"
	u.RawQuery = ""
	return u.String(), nil
}
