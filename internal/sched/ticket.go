package sched

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Ticket is the caller side of a submitted Operation. It resolves exactly once,
// when the Operation finishes.
type Ticket struct {
	id      uuid.UUID
	once    sync.Once
	done    chan struct{}
	success bool
}

func newTicket() *Ticket {
	return &Ticket{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
}

func (t *Ticket) ID() uuid.UUID {
	return t.id
}

// Done is closed once the operation finished.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Success returns the result of a finished operation, false while pending.
func (t *Ticket) Success() bool {
	select {
	case <-t.done:
		return t.success
	default:
		return false
	}
}

// Wait blocks until the operation finishes or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (bool, error) {
	select {
	case <-t.done:
		return t.success, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (t *Ticket) resolve(success bool) {
	t.once.Do(func() {
		t.success = success
		close(t.done)
	})
}
