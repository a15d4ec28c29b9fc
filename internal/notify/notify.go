// Package notify implements the collaborators a scheduler talks to: the
// readiness authority asked to release cookie gated operations and the
// dispatcher publishing whether a sensor is acquiring.
package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// LogAuthority only logs readiness. Cookies are then promoted by hand through
// the control API.
type LogAuthority struct{}

func (LogAuthority) NotifyReadyForCookie(ctx context.Context, sensorID, cookie int) error {
	slog.InfoContext(ctx, "sensor ready for cookie",
		slog.Int("sensor", sensorID),
		slog.Int("cookie", cookie))
	return nil
}

// Availability keeps the acquisition flag of every sensor.
type Availability struct {
	mx     sync.RWMutex
	active map[int]bool
}

func NewAvailability() *Availability {
	return &Availability{active: make(map[int]bool)}
}

func (a *Availability) MarkSensorActive(sensorID int, active bool) {
	a.mx.Lock()
	prev := a.active[sensorID]
	a.active[sensorID] = active
	a.mx.Unlock()
	if prev != active {
		slog.Debug("sensor availability changed", "sensor", sensorID, "active", active)
	}
}

func (a *Availability) Active(sensorID int) bool {
	a.mx.RLock()
	defer a.mx.RUnlock()
	return a.active[sensorID]
}

// ActiveSensors returns the sorted ids of acquiring sensors.
func (a *Availability) ActiveSensors() []int {
	a.mx.RLock()
	defer a.mx.RUnlock()
	ret := make([]int, 0, len(a.active))
	for id, on := range a.active {
		if on {
			ret = append(ret, id)
		}
	}
	slices.Sort(ret)
	return ret
}
