package storage

import (
	"encoding/json"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
)

// Record is the measurement/tag/field projection of an event envelope.
type Record struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
}

// BuildRecord maps an envelope onto the time-series schema. Known events get
// explicit tag/field layouts so they stay queryable; anything else falls back
// to a flattened payload tagged with the event name.
func BuildRecord(env event.Envelope) Record {
	tags := map[string]string{}
	fields := map[string]any{}
	measurement := env.Event

	switch env.Event {
	case event.PoseTransition:
		tags["from"] = stringOr(env.Payload["from"], "unknown")
		tags["to"] = stringOr(env.Payload["to"], "unknown")
		if conf, ok := numeric(env.Payload["confidence"]); ok {
			fields["confidence"] = conf
		}

	case event.ServoAction:
		tags["action"] = stringOr(env.Payload["action"], "unknown")
		if angle, ok := numeric(env.Payload["angle"]); ok {
			fields["angle"] = angle
		}

	case event.TreatGiven:
		tags["reason"] = stringOr(env.Payload["reason"], "unknown")

	case event.AudioPlayback:
		text := env.String("text")
		fields["text"] = text
		fields["length"] = len(text)
		if ref := env.String("fileRef"); ref != "" {
			fields["fileRef"] = ref
		}

	case event.ModeChanged, "mode_change":
		measurement = "mode_change"
		tags["mode"] = stringOr(env.Payload["mode"], "unknown")

	case event.CommandSuccess:
		tags["targetPose"] = stringOr(env.Payload["targetPose"], "unknown")
		fields["commandText"] = env.String("commandText")
		fields["fileRef"] = env.String("fileRef")
		if ts, ok := numeric(env.Payload["audioTs"]); ok {
			fields["audioTs"] = ts
		}
		if ts, ok := numeric(env.Payload["poseTs"]); ok {
			fields["poseTs"] = ts
		}

	case event.DailyCounters:
		tags["date"] = stringOr(env.Payload["date"], "unknown")
		if n, ok := numeric(env.Payload["treatCount"]); ok {
			fields["treatCount"] = int64(n)
		}
		if n, ok := numeric(env.Payload["successCount"]); ok {
			fields["successCount"] = int64(n)
		}

	case event.Status:
		flattenInto(fields, env.Payload)

	default:
		flattenInto(fields, env.Payload)
		tags["event"] = env.Event
		if _, ok := fields["event"]; !ok {
			fields["event"] = env.Event
		}
	}

	// Influx rejects field-less points.
	if len(fields) == 0 {
		fields["event"] = env.Event
	}

	return Record{Measurement: measurement, Tags: tags, Fields: fields}
}

// flattenInto copies payload values suitable for fields: scalars pass through,
// nested structures are JSON-encoded, nils are skipped.
func flattenInto(fields map[string]any, payload map[string]any) {
	for k, v := range payload {
		if v == nil {
			continue
		}
		switch v := v.(type) {
		case bool, string, float64:
			fields[k] = v
		case int, int64:
			fields[k] = v
		default:
			if encoded, err := json.Marshal(v); err == nil {
				fields[k] = string(encoded)
			}
		}
	}
}

// numeric coerces payload numbers regardless of whether the envelope came off
// the wire (float64) or was built in-process (int).
func numeric(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
