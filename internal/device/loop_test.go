package device

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/VittorioRossetto/dogTrainer/internal/audio"
	"github.com/VittorioRossetto/dogTrainer/internal/event"
	"github.com/VittorioRossetto/dogTrainer/internal/session"
	"github.com/VittorioRossetto/dogTrainer/internal/vision"
)

type nopActuator struct{}

func (nopActuator) SetAngle(float64) error { return nil }
func (nopActuator) Sweep() error           { return nil }
func (nopActuator) Stop() error            { return nil }

type nopSink struct{}

func (nopSink) Emit(event.Envelope) {}

type observeResult struct {
	obs vision.Observation
	err error
}

// stubSource replays a fixed result sequence and then reports io.EOF.
type stubSource struct {
	results []observeResult
	next    int
}

func (s *stubSource) Observe(context.Context) (vision.Observation, error) {
	if s.next >= len(s.results) {
		return vision.Observation{}, io.EOF
	}
	r := s.results[s.next]
	s.next++
	return r.obs, r.err
}

func (s *stubSource) Close() error { return nil }

// failingSource returns the same error on every call, like a scanner whose
// underlying reader died.
type failingSource struct {
	err   error
	calls int
}

func (s *failingSource) Observe(context.Context) (vision.Observation, error) {
	s.calls++
	return vision.Observation{}, s.err
}

func (s *failingSource) Close() error { return nil }

func newLoopController() *session.Controller {
	return session.New(session.Config{Mode: "manual"}, nopActuator{}, audio.NopPlayer{}, nopSink{})
}

func TestLoopStopsOnEOF(t *testing.T) {
	if err := Loop(context.Background(), &stubSource{}, newLoopController()); err != nil {
		t.Fatalf("Loop err: %v", err)
	}
}

func TestLoopRecoversFromIsolatedError(t *testing.T) {
	src := &stubSource{results: []observeResult{
		{err: errors.New("bad line")},
		{obs: vision.Observation{Detected: true, Label: "sit", Confidence: 0.9}},
	}}

	if err := Loop(context.Background(), src, newLoopController()); err != nil {
		t.Fatalf("expected isolated error tolerated, got %v", err)
	}
	if src.next != 2 {
		t.Fatalf("expected loop to keep reading past the error, got %d reads", src.next)
	}
}

func TestLoopGivesUpOnPersistentError(t *testing.T) {
	wantErr := errors.New("read observation: broken pipe")
	src := &failingSource{err: wantErr}

	err := Loop(context.Background(), src, newLoopController())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the source error returned, got %v", err)
	}
	if src.calls != maxObserveErrors {
		t.Fatalf("expected %d attempts before giving up, got %d", maxObserveErrors, src.calls)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &failingSource{err: context.Canceled}
	if err := Loop(ctx, src, newLoopController()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
