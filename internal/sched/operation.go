package sched

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompletionFunc is an optional per-operation callback. It is invoked exactly
// once from the scheduler loop and must not block.
type CompletionFunc func(m Monitor, success bool)

// Operation wraps a Monitor with its lifecycle state. It is mutated by the
// scheduler loop only.
type Operation struct {
	ticket  *Ticket
	monitor Monitor
	caps    Capabilities
	done    CompletionFunc
	// sink is the Callback handed to the monitor for this run only.
	sink Callback

	state    State
	cookie   int
	promoted bool
	// markedActive is set once the availability dispatcher was told the sensor
	// is active for this operation.
	markedActive bool

	submitted time.Time
	started   time.Time
	finished  time.Time
}

func newOperation(m Monitor, done CompletionFunc) *Operation {
	return &Operation{
		ticket:    newTicket(),
		monitor:   m,
		caps:      m.Capabilities(),
		done:      done,
		state:     WaitingInQueue,
		cookie:    m.Cookie(),
		submitted: time.Now().UTC(),
	}
}

func (op *Operation) ID() uuid.UUID {
	return op.ticket.id
}

func (op *Operation) State() State {
	return op.state
}

func (op *Operation) Monitor() Monitor {
	return op.monitor
}

// unstartable reports a hardware-backed operation whose session cannot open.
func (op *Operation) unstartable() bool {
	return op.caps.Hardware != nil && op.caps.Hardware.Unstartable()
}

// finish moves the operation to Finished, invokes the completion callback and
// resolves the ticket. It returns false if the operation already finished.
func (op *Operation) finish(success bool) bool {
	if op.state == Finished {
		return false
	}
	op.state = Finished
	op.finished = time.Now().UTC()
	if op.done != nil {
		op.done(op.monitor, success)
	}
	op.ticket.resolve(success)
	return true
}

func (op *Operation) info() OperationInfo {
	return OperationInfo{
		ID:        op.ticket.id,
		Monitor:   describe(op.monitor),
		State:     op.state,
		Cookie:    op.cookie,
		Submitted: op.submitted,
		Started:   op.started,
	}
}

func (op *Operation) String() string {
	return fmt.Sprintf("{%s, id: %s, state: %s, cookie: %d}", describe(op.monitor), op.ticket.id, op.state, op.cookie)
}
