package storage

import (
	"testing"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
)

func envelope(name string, payload map[string]any) event.Envelope {
	return event.Envelope{Type: "event", Event: name, Timestamp: 100, Payload: payload}
}

func TestBuildRecordPoseTransition(t *testing.T) {
	rec := BuildRecord(envelope(event.PoseTransition, map[string]any{
		"from": "stand", "to": "sit", "confidence": 0.92,
	}))

	if rec.Measurement != "pose_transition" {
		t.Fatalf("unexpected measurement: %s", rec.Measurement)
	}
	if rec.Tags["from"] != "stand" || rec.Tags["to"] != "sit" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if rec.Fields["confidence"] != 0.92 {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
}

func TestBuildRecordPoseTransitionMissingLabels(t *testing.T) {
	rec := BuildRecord(envelope(event.PoseTransition, map[string]any{"to": "sit"}))

	if rec.Tags["from"] != "unknown" {
		t.Fatalf("expected missing pose tagged unknown, got %q", rec.Tags["from"])
	}
	// No confidence means the fallback field keeps the point writable.
	if rec.Fields["event"] != "pose_transition" {
		t.Fatalf("expected fallback field, got %+v", rec.Fields)
	}
}

func TestBuildRecordServoActionCoercesIntAngle(t *testing.T) {
	// In-process envelopes carry int angles; wire envelopes carry float64.
	rec := BuildRecord(envelope(event.ServoAction, map[string]any{
		"action": "sweep", "angle": 90,
	}))

	if rec.Tags["action"] != "sweep" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if rec.Fields["angle"] != 90.0 {
		t.Fatalf("expected angle coerced to float, got %#v", rec.Fields["angle"])
	}
}

func TestBuildRecordTreatGiven(t *testing.T) {
	rec := BuildRecord(envelope(event.TreatGiven, map[string]any{"reason": "auto"}))

	if rec.Tags["reason"] != "auto" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if len(rec.Fields) == 0 {
		t.Fatal("expected at least one field")
	}
}

func TestBuildRecordAudioPlayback(t *testing.T) {
	rec := BuildRecord(envelope(event.AudioPlayback, map[string]any{
		"text": "sit", "fileRef": "sit.wav",
	}))

	if rec.Fields["text"] != "sit" || rec.Fields["length"] != 3 {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
	if rec.Fields["fileRef"] != "sit.wav" {
		t.Fatalf("unexpected fileRef: %+v", rec.Fields)
	}
}

func TestBuildRecordModeChanged(t *testing.T) {
	rec := BuildRecord(envelope(event.ModeChanged, map[string]any{"mode": "manual"}))

	if rec.Measurement != "mode_change" {
		t.Fatalf("unexpected measurement: %s", rec.Measurement)
	}
	if rec.Tags["mode"] != "manual" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
}

func TestBuildRecordCommandSuccess(t *testing.T) {
	rec := BuildRecord(envelope(event.CommandSuccess, map[string]any{
		"commandText": "sit", "fileRef": "", "targetPose": "sit",
		"audioTs": 100.0, "poseTs": 103.0,
	}))

	if rec.Tags["targetPose"] != "sit" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if rec.Fields["audioTs"] != 100.0 || rec.Fields["poseTs"] != 103.0 {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
}

func TestBuildRecordDailyCounters(t *testing.T) {
	rec := BuildRecord(envelope(event.DailyCounters, map[string]any{
		"date": "2021-01-01", "treatCount": 4, "successCount": 2,
	}))

	if rec.Tags["date"] != "2021-01-01" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if rec.Fields["treatCount"] != int64(4) || rec.Fields["successCount"] != int64(2) {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
}

func TestBuildRecordStatusFlattensPayload(t *testing.T) {
	rec := BuildRecord(envelope(event.Status, map[string]any{
		"mode": "auto", "dog_detected": true, "extras": map[string]any{"a": 1},
	}))

	if rec.Fields["mode"] != "auto" || rec.Fields["dog_detected"] != true {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
	if rec.Fields["extras"] != `{"a":1}` {
		t.Fatalf("expected nested payload JSON-encoded, got %#v", rec.Fields["extras"])
	}
}

func TestBuildRecordUnknownEventFallsBack(t *testing.T) {
	rec := BuildRecord(envelope("bark_detected", map[string]any{"volume": 0.7}))

	if rec.Measurement != "bark_detected" {
		t.Fatalf("unexpected measurement: %s", rec.Measurement)
	}
	if rec.Tags["event"] != "bark_detected" {
		t.Fatalf("unexpected tags: %+v", rec.Tags)
	}
	if rec.Fields["volume"] != 0.7 {
		t.Fatalf("unexpected fields: %+v", rec.Fields)
	}
}
