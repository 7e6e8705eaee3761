package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// StreamSource adapts a line-delimited JSON feed of observations, typically
// the stdout of the external detector process piped into this one. Each line
// is {"detected":bool,"label":string,"confidence":float}.
type StreamSource struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewStreamSource reads observations from r. When r is also an io.Closer it
// is closed by Close.
func NewStreamSource(r io.Reader) *StreamSource {
	s := &StreamSource{scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Observe blocks until the next observation line arrives. io.EOF is returned
// when the feed ends.
func (s *StreamSource) Observe(ctx context.Context) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Observation{}, fmt.Errorf("read observation: %w", err)
		}
		return Observation{}, io.EOF
	}

	var raw struct {
		Detected   *bool   `json:"detected"`
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(s.scanner.Bytes(), &raw); err != nil {
		return Observation{}, fmt.Errorf("decode observation: %w", err)
	}

	obs := Observation{Label: raw.Label, Confidence: raw.Confidence}
	if raw.Detected != nil {
		obs.Detected = *raw.Detected
	} else {
		obs.Detected = raw.Label != ""
	}
	return obs, nil
}

// Close releases the underlying reader when it is closable.
func (s *StreamSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Script replays a fixed observation sequence and then reports io.EOF. Used
// in tests and dry runs.
type Script struct {
	mu   sync.Mutex
	obs  []Observation
	next int
}

// NewScript builds a Script over the given observations.
func NewScript(obs ...Observation) *Script {
	return &Script{obs: obs}
}

// Observe returns the next scripted observation.
func (s *Script) Observe(ctx context.Context) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	if s.next >= len(s.obs) {
		return Observation{}, io.EOF
	}
	obs := s.obs[s.next]
	s.next++
	return obs, nil
}

// Close implements Source.
func (s *Script) Close() error { return nil }
