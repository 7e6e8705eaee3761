package event

import (
	"encoding/json"
	"time"
)

// Envelope is the standard wrapper for everything the device and collector
// publish: {"type":"event","event":<name>,"timestamp":<unix seconds>,"payload":{...}}.
// Timestamps are assigned by the producer at emission time, never by the hub.
type Envelope struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	Timestamp float64        `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Event names carried in envelopes.
const (
	PoseTransition = "pose_transition"
	TreatGiven     = "treat_given"
	ServoAction    = "servo_action"
	AudioPlayback  = "audio_playback"
	ModeChanged    = "mode_changed"
	TreatOverride  = "treat_override"
	CommandSuccess = "command_success"
	DailyCounters  = "daily_counters"
	Status         = "status"
)

// Command names a UI (or the collector) may send toward the device.
const (
	CmdSetMode            = "set_mode"
	CmdServo              = "servo"
	CmdAudio              = "audio"
	CmdOverrideTreat      = "override_treat"
	CmdTreatNow           = "treat_now"
	CmdCollectorBroadcast = "collector_broadcast"
)

// New builds an envelope stamped with the current wall clock.
func New(name string, payload map[string]any) Envelope {
	return At(name, time.Now(), payload)
}

// At builds an envelope with an explicit emission time.
func At(name string, ts time.Time, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Type:      "event",
		Event:     name,
		Timestamp: UnixSeconds(ts),
		Payload:   payload,
	}
}

// UnixSeconds converts a time to the float seconds representation used on the wire.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Time converts a wire timestamp back to a time.Time.
func Time(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}

// Decode attempts to parse raw bytes as an event envelope. The second return
// is false when the bytes are valid JSON but not an envelope, or not JSON at all.
func Decode(raw []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type != "event" || env.Event == "" {
		return Envelope{}, false
	}
	return env, true
}

// String returns a string payload field, or "" when absent or not a string.
func (e Envelope) String(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Float returns a numeric payload field. JSON numbers decode as float64.
func (e Envelope) Float(key string) (float64, bool) {
	f, ok := e.Payload[key].(float64)
	return f, ok
}

// Command is the decoded shape of a UI->device command message. Fields beyond
// Cmd are populated only when the respective command carries them; the hub
// itself never decodes commands, only the device side does.
type Command struct {
	Cmd     string         `json:"cmd"`
	Mode    string         `json:"mode,omitempty"`
	Action  string         `json:"action,omitempty"`
	Angle   *float64       `json:"angle,omitempty"`
	Text    string         `json:"text,omitempty"`
	B64     string         `json:"b64,omitempty"`
	FileRef string         `json:"fileRef,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Registration is the first message every hub connection must send.
type Registration struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// Connection roles accepted by the hub.
const (
	RoleDevice = "device"
	RoleUI     = "ui"
)
