package sched

import (
	"iter"

	"github.com/google/uuid"
)

// Queue is the FIFO of operations which were not dequeued yet. It is not safe
// for concurrent use; the scheduler loop owns it.
type Queue struct {
	ops []*Operation
}

func NewQueue() *Queue {
	return &Queue{ops: make([]*Operation, 0, 8)}
}

func (q *Queue) Push(op *Operation) {
	q.ops = append(q.ops, op)
}

// Peek returns the front operation or nil.
func (q *Queue) Peek() *Operation {
	if len(q.ops) == 0 {
		return nil
	}
	return q.ops[0]
}

// Last returns the most recently pushed operation or nil.
func (q *Queue) Last() *Operation {
	if len(q.ops) == 0 {
		return nil
	}
	return q.ops[len(q.ops)-1]
}

// Pop removes and returns the front operation, nil if the queue is empty.
func (q *Queue) Pop() *Operation {
	if len(q.ops) == 0 {
		return nil
	}
	op := q.ops[0]
	q.ops[0] = nil
	q.ops = q.ops[1:]
	if len(q.ops) == 0 {
		q.ops = q.ops[:0:0]
	}
	return op
}

func (q *Queue) Len() int {
	return len(q.ops)
}

func (q *Queue) Empty() bool {
	return len(q.ops) == 0
}

// All iterates the queue front to back.
func (q *Queue) All() iter.Seq[*Operation] {
	return func(yield func(*Operation) bool) {
		for _, op := range q.ops {
			if !yield(op) {
				return
			}
		}
	}
}

func (q *Queue) Find(id uuid.UUID) *Operation {
	for op := range q.All() {
		if op.ticket.id == id {
			return op
		}
	}
	return nil
}

func (q *Queue) FindMonitor(m Monitor) *Operation {
	for op := range q.All() {
		if op.monitor == m {
			return op
		}
	}
	return nil
}

// Remove deletes op preserving the order of the rest.
func (q *Queue) Remove(op *Operation) bool {
	for i, o := range q.ops {
		if o != op {
			continue
		}
		copy(q.ops[i:], q.ops[i+1:])
		q.ops[len(q.ops)-1] = nil
		q.ops = q.ops[:len(q.ops)-1]
		return true
	}
	return false
}
