package sched

import (
	"context"
	"fmt"
)

// Callback receives the completion of a Monitor. Every Monitor must call
// OnFinished exactly once per Start or CancelWithoutStarting.
type Callback interface {
	OnFinished(m Monitor, success bool)
}

// Monitor is a single unit of sensor work. Implementations must be comparable
// (usually a pointer), since completion is matched by identity.
type Monitor interface {
	SensorID() int
	// Cookie returns 0 to start as soon as the operation reaches the head of
	// the queue, otherwise the operation waits for PromoteCookie.
	Cookie() int
	// Start must not block; completion is reported through cb.
	Start(cb Callback)
	Capabilities() Capabilities
}

// Capabilities lists what a Monitor supports. A nil Cancel or Hardware means
// the capability is absent.
type Capabilities struct {
	Cancel   Canceller
	Hardware Hardware
	// Acquisition monitors mark the sensor active in the AvailabilityDispatcher.
	Acquisition bool
	// Preempts makes a submission cancel the current operation instead of
	// waiting for it.
	Preempts bool
}

type Canceller interface {
	// Cancel interrupts a started operation, which then reports completion.
	Cancel()
	// CancelWithoutStarting is used for an operation which never started. It
	// must report completion through cb.
	CancelWithoutStarting(cb Callback)
}

type Hardware interface {
	// Unstartable reports that the hardware session cannot be opened at all,
	// e.g. the HAL is already gone.
	Unstartable() bool
	// UnableToStart notifies the client side about the failure. It does not
	// report completion.
	UnableToStart()
}

// ReadinessAuthority is told that an operation waits for its cookie.
type ReadinessAuthority interface {
	NotifyReadyForCookie(ctx context.Context, sensorID, cookie int) error
}

type AvailabilityDispatcher interface {
	MarkSensorActive(sensorID int, active bool)
}

type noopAuthority struct{}

func (noopAuthority) NotifyReadyForCookie(context.Context, int, int) error { return nil }

type noopDispatcher struct{}

func (noopDispatcher) MarkSensorActive(int, bool) {}

func describe(m Monitor) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
