package sched

import (
	"sync"

	"github.com/google/uuid"
)

type eventKind int

const (
	eventSubmit eventKind = iota + 1
	eventCancel
	eventFinished
	eventPromote
	eventStatus
)

type event struct {
	kind    eventKind
	op      *Operation
	id      uuid.UUID
	monitor Monitor
	success bool
	cookie  int
	reply   chan<- Status
}

// inbox marshals calls from any goroutine onto the scheduler loop.
//
// It is unbounded, so a Monitor completing synchronously inside Start (on the
// loop goroutine) never blocks. signal has a buffer of one and coalesces wake-ups.
type inbox struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends e, returns false once the inbox is closed.
func (q *inbox) push(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns all queued events in arrival order.
func (q *inbox) take() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	events := q.events
	q.events = make([]event, 0, cap(events))
	return events
}

// close rejects further pushes and returns what was left.
func (q *inbox) close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	events := q.events
	q.events = nil
	return events
}
