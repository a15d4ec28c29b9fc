package hal

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrSensorBusy  = errors.New("sensor session already open")
	ErrNoMatch     = errors.New("sensor reported no match")
	ErrSensorDown  = errors.New("sensor is down")
	ErrUnknownKind = errors.New("unknown operation kind")
)

// Sensor simulates an exclusive biometric sensor. Opening a second session
// while one is open fails and is counted, so tests can prove that a scheduler
// never overlaps operations.
type Sensor struct {
	id      int
	name    string
	latency time.Duration

	mx       sync.Mutex
	open     bool
	down     bool
	failing  bool
	sessions int
	overlaps int
}

func NewSensor(id int, name string, latency time.Duration) *Sensor {
	return &Sensor{
		id:      id,
		name:    name,
		latency: latency,
	}
}

func (s *Sensor) ID() int {
	return s.id
}

func (s *Sensor) Name() string {
	return s.name
}

// SetDown simulates a torn down HAL: no session can be opened.
func (s *Sensor) SetDown(down bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.down = down
}

func (s *Sensor) Down() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.down
}

// SetFailing makes sessions complete with ErrNoMatch.
func (s *Sensor) SetFailing(failing bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.failing = failing
}

func (s *Sensor) Failing() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.failing
}

// Sessions returns the number of sessions opened so far.
func (s *Sensor) Sessions() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.sessions
}

// Overlaps returns how many times a session was requested while another one
// was open.
func (s *Sensor) Overlaps() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.overlaps
}

// Session opens the sensor, holds it for the configured latency and closes it.
func (s *Sensor) Session(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	s.mx.Lock()
	failing := s.failing
	s.mx.Unlock()
	if failing {
		return ErrNoMatch
	}
	return nil
}

func (s *Sensor) acquire() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	switch {
	case s.down:
		return ErrSensorDown
	case s.open:
		s.overlaps++
		return ErrSensorBusy
	}
	s.open = true
	s.sessions++
	return nil
}

func (s *Sensor) release() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.open = false
}
