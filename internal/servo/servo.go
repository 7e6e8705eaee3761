package servo

import (
	"log"
	"sync"
	"time"
)

// Actuator drives the treat dispenser. The real PCA9685-backed driver lives
// outside this process; implementations here adapt or simulate it.
type Actuator interface {
	// SetAngle moves the horn to the given angle in degrees, -90..90.
	SetAngle(angle float64) error
	// Sweep performs the dispense motion: rest, treat position, rest.
	Sweep() error
	// Stop relaxes the servo.
	Stop() error
}

// Config holds the sweep positions.
type Config struct {
	TreatAngle float64
	RestAngle  float64
}

// Sim is a timing-faithful simulator used when no hardware driver is wired.
// It logs every motion and sleeps the same intervals the physical sweep takes
// so the control loop sees realistic latencies.
type Sim struct {
	cfg   Config
	mu    sync.Mutex
	angle float64
}

// NewSim builds a simulator starting at the rest position.
func NewSim(cfg Config) *Sim {
	return &Sim{cfg: cfg, angle: cfg.RestAngle}
}

// SetAngle clamps to -90..90 and records the new position.
func (s *Sim) SetAngle(angle float64) error {
	if angle < -90 {
		angle = -90
	}
	if angle > 90 {
		angle = 90
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if angle == s.angle {
		return nil
	}
	s.angle = angle
	log.Printf("[servo] angle set to %.1f", angle)
	return nil
}

// Sweep runs the dispense motion.
func (s *Sim) Sweep() error {
	if err := s.SetAngle(s.cfg.RestAngle); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.SetAngle(s.cfg.TreatAngle); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	if err := s.SetAngle(s.cfg.RestAngle); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop relaxes the servo.
func (s *Sim) Stop() error {
	log.Printf("[servo] stopped")
	return nil
}

// Angle reports the current position. Test helper.
func (s *Sim) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}
