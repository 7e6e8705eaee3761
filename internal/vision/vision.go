package vision

import "context"

// Observation is one posture reading from the detection oracle. Label is
// empty when no subject was detected in the frame.
type Observation struct {
	Detected   bool
	Label      string
	Confidence float64
}

// Source produces posture observations once per control cycle. The concrete
// oracle (camera plus detector/classifier models) lives outside this process;
// implementations here only adapt whatever feed is available.
type Source interface {
	Observe(ctx context.Context) (Observation, error)
	Close() error
}
