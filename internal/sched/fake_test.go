package sched

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	name        string
	sensor      int
	cookie      int
	cancellable bool
	hardware    bool
	unstartable bool
	acquisition bool
	preempts    bool
	// syncFinish makes Start report completion before it returns
	syncFinish *bool

	log *[]string
	cb  Callback

	starts              int
	cancels             int
	cancelsWithoutStart int
	unable              int
}

func (m *fakeMonitor) String() string { return m.name }
func (m *fakeMonitor) SensorID() int  { return m.sensor }
func (m *fakeMonitor) Cookie() int    { return m.cookie }

func (m *fakeMonitor) Start(cb Callback) {
	m.starts++
	m.cb = cb
	m.record("start")
	if m.syncFinish != nil {
		cb.OnFinished(m, *m.syncFinish)
	}
}

func (m *fakeMonitor) Cancel() {
	m.cancels++
	m.record("cancel")
}

func (m *fakeMonitor) CancelWithoutStarting(cb Callback) {
	m.cancelsWithoutStart++
	m.cb = cb
	m.record("cancel_without_start")
	cb.OnFinished(m, false)
}

func (m *fakeMonitor) Unstartable() bool { return m.unstartable }

func (m *fakeMonitor) UnableToStart() {
	m.unable++
	m.record("unable_to_start")
}

func (m *fakeMonitor) Capabilities() Capabilities {
	caps := Capabilities{
		Acquisition: m.acquisition,
		Preempts:    m.preempts,
	}
	if m.cancellable {
		caps.Cancel = m
	}
	if m.hardware {
		caps.Hardware = m
	}
	return caps
}

func (m *fakeMonitor) record(what string) {
	if m.log != nil {
		*m.log = append(*m.log, m.name+" "+what)
	}
}

type fakeAuthority struct {
	cookies []int
	err     error
}

func (a *fakeAuthority) NotifyReadyForCookie(_ context.Context, sensorID, cookie int) error {
	a.cookies = append(a.cookies, cookie)
	return a.err
}

type fakeDispatcher struct {
	calls []string
}

func (d *fakeDispatcher) MarkSensorActive(sensorID int, active bool) {
	d.calls = append(d.calls, fmt.Sprintf("%d %t", sensorID, active))
}

type fakeObserver struct {
	records []Record
}

func (o *fakeObserver) Observe(_ context.Context, rec Record) {
	o.records = append(o.records, rec)
}

var errAuthorityDown = errors.New("authority unreachable")

// harness drives a Scheduler without its loop: every call drains the inbox on
// the test goroutine and checks the invariants.
type harness struct {
	t          *testing.T
	s          *Scheduler
	authority  *fakeAuthority
	dispatcher *fakeDispatcher
	observer   *fakeObserver
	log        []string
	done       map[string]int
}

func newHarness(t *testing.T, history int) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		authority:  &fakeAuthority{},
		dispatcher: &fakeDispatcher{},
		observer:   &fakeObserver{},
		done:       make(map[string]int),
	}
	h.s = New(Config{SensorID: 1, Name: "test", History: history}, h.authority, h.dispatcher).
		WithObserver(h.observer)
	return h
}

func (h *harness) monitor(name string) *fakeMonitor {
	return &fakeMonitor{
		name:        name,
		sensor:      1,
		cancellable: true,
		hardware:    true,
		log:         &h.log,
	}
}

func (h *harness) enqueue(m *fakeMonitor) *Ticket {
	return h.s.Submit(m, func(mm Monitor, success bool) {
		name := describe(mm)
		h.done[name]++
		h.log = append(h.log, fmt.Sprintf("%s done %t", name, success))
	})
}

func (h *harness) submit(m *fakeMonitor) *Ticket {
	tk := h.enqueue(m)
	h.drain()
	return tk
}

func (h *harness) finish(m *fakeMonitor, success bool) {
	h.t.Helper()
	require.NotNil(h.t, m.cb, "%s was never started", m.name)
	m.cb.OnFinished(m, success)
	h.drain()
}

func (h *harness) cancel(tk *Ticket) {
	h.s.RequestCancel(tk.ID())
	h.drain()
}

func (h *harness) promote(cookie int) {
	h.s.PromoteCookie(cookie)
	h.drain()
}

func (h *harness) drain() {
	h.t.Helper()
	h.s.drain(h.t.Context())
	h.checkInvariants()
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	active := 0
	if cur := h.s.current; cur != nil {
		require.NotEqual(h.t, Finished, cur.state)
		require.Nil(h.t, h.s.pending.Find(cur.ID()), "queue holds the current operation")
		if cur.state.Active() {
			active++
		}
	} else {
		require.True(h.t, h.s.pending.Empty(), "idle with pending operations")
	}
	for op := range h.s.pending.All() {
		require.Contains(h.t, []State{WaitingInQueue, WaitingInQueueCanceling}, op.state)
		require.False(h.t, op.state.Active())
	}
	require.LessOrEqual(h.t, active, 1)
	for name, n := range h.done {
		require.Equal(h.t, 1, n, "completion callback of %s", name)
	}
}

func (h *harness) idle() bool {
	return h.s.current == nil && h.s.pending.Empty()
}

func ptr[T any](v T) *T {
	return &v
}
