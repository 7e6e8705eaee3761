package correlate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
	"github.com/VittorioRossetto/dogTrainer/internal/retry"
	"github.com/VittorioRossetto/dogTrainer/internal/storage"
)

const (
	// MatchWindow is the maximum intent-to-outcome gap in seconds.
	MatchWindow = 5.0
	// IntentCapacity bounds the intent buffer.
	IntentCapacity = 200

	writeWait = 10 * time.Second
)

// Engine is the correlation consumer: it subscribes to the hub's broadcast
// stream, pairs audio intents with posture outcomes, maintains daily rollups,
// and writes everything through to the durable store. It runs single-threaded
// over its own connection loop, so the buffer and counters need no locking.
type Engine struct {
	wsURL  string
	policy retry.Policy
	store  storage.EventWriter

	buffer   *Buffer
	counters *DailyCounters

	// sendUpstream delivers a directive back to the hub; rebound per connection.
	sendUpstream func([]byte) error
}

// New builds an engine that dials wsURL and persists through store.
func New(wsURL string, policy retry.Policy, store storage.EventWriter) *Engine {
	return &Engine{
		wsURL:    wsURL,
		policy:   policy,
		store:    store,
		buffer:   NewBuffer(IntentCapacity),
		counters: NewDailyCounters(),
	}
}

// Counters exposes the rollup state. Test helper.
func (e *Engine) Counters() *DailyCounters { return e.counters }

// Run consumes the hub stream until ctx is cancelled, reconnecting at the
// policy's fixed interval on every connection loss.
func (e *Engine) Run(ctx context.Context) error {
	return e.policy.Run(ctx, e.connectAndConsume)
}

func (e *Engine) connectAndConsume(ctx context.Context) error {
	log.Printf("[collector] connecting to %s", e.wsURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.wsURL, nil)
	if err != nil {
		log.Printf("[collector] dial failed: %v", err)
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// Register as a UI so the hub includes us in the broadcast fan-out and
	// forwards our directives to the device.
	reg := event.Registration{Type: "register", Role: event.RoleUI, Name: "collector"}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(reg); err != nil {
		return fmt.Errorf("register with hub: %w", err)
	}

	e.sendUpstream = func(msg []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	defer func() { e.sendUpstream = nil }()
	log.Printf("[collector] connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[collector] hub connection lost: %v", err)
			return err
		}
		e.Consume(ctx, bytes.TrimSpace(raw))
	}
}

// Consume processes one broadcast message. JSON that is not an event envelope
// is wrapped as a status envelope before persisting; non-JSON is ignored.
func (e *Engine) Consume(ctx context.Context, raw []byte) {
	env, ok := event.Decode(raw)
	if !ok {
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			log.Printf("[collector] ignoring non-JSON message: %s", raw)
			return
		}
		if _, isReply := data["ok"]; isReply {
			return
		}
		if errMsg, isErr := data["error"].(string); isErr {
			log.Printf("[collector] hub error reply: %s", errMsg)
			return
		}
		e.writeThrough(ctx, event.New(event.Status, data))
		return
	}

	if env.Timestamp == 0 {
		env.Timestamp = event.UnixSeconds(time.Now())
	}

	switch env.Event {
	case event.AudioPlayback:
		e.buffer.Add(Intent{
			Timestamp: env.Timestamp,
			Text:      env.String("text"),
			FileRef:   env.String("fileRef"),
		})

	case event.PoseTransition:
		e.matchOutcome(ctx, env)

	case event.TreatGiven:
		date, counts := e.counters.IncTreat(env.Timestamp)
		e.writeCounters(ctx, date, counts)
	}

	e.writeThrough(ctx, env)
}

// matchOutcome checks whether a recent intent asked for the posture this
// transition landed on; a hit becomes a command_success event that is
// persisted and echoed back through the hub for UI rebroadcast.
func (e *Engine) matchOutcome(ctx context.Context, env event.Envelope) {
	target := env.String("to")
	if target == "" {
		return
	}

	intent, ok := e.buffer.Match(target, env.Timestamp, MatchWindow)
	if !ok {
		return
	}

	success := event.Envelope{
		Type:      "event",
		Event:     event.CommandSuccess,
		Timestamp: env.Timestamp,
		Payload: map[string]any{
			"commandText": intent.Text,
			"fileRef":     intent.FileRef,
			"targetPose":  target,
			"audioTs":     intent.Timestamp,
			"poseTs":      env.Timestamp,
		},
	}

	e.writeThrough(ctx, success)

	date, counts := e.counters.IncSuccess(env.Timestamp)
	e.writeCounters(ctx, date, counts)

	directive, err := json.Marshal(map[string]any{
		"cmd":     event.CmdCollectorBroadcast,
		"event":   event.CommandSuccess,
		"payload": success.Payload,
	})
	if err != nil {
		return
	}
	if send := e.sendUpstream; send != nil {
		if err := send(directive); err != nil {
			log.Printf("[collector] failed to send success directive: %v", err)
		}
	}
}

// writeCounters persists the full current-day snapshot; the latest write for
// a date supersedes earlier ones, so repeats are safe.
func (e *Engine) writeCounters(ctx context.Context, date string, counts Counts) {
	env := event.New(event.DailyCounters, map[string]any{
		"date":         date,
		"treatCount":   counts.TreatCount,
		"successCount": counts.SuccessCount,
	})
	e.writeThrough(ctx, env)
}

// writeThrough persists an envelope. Failures are logged and the event is
// lost; in-memory state has already advanced.
func (e *Engine) writeThrough(ctx context.Context, env event.Envelope) {
	if err := e.store.WriteEvent(ctx, env); err != nil {
		log.Printf("[collector] failed to write %s: %v", env.Event, err)
	}
}
