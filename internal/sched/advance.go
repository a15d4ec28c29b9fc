package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

func (s *Scheduler) submit(ctx context.Context, op *Operation) {
	if s.stopping {
		slog.DebugContext(ctx, "scheduler stopping: rejecting operation", "op", op)
		s.finish(ctx, op, false, true)
		return
	}
	s.pending.Push(op)
	slog.DebugContext(ctx, "[Added]", "op", op, "pending", s.pending.Len())

	switch {
	case s.current == nil:
		s.advance(ctx)
	case op.caps.Preempts:
		slog.DebugContext(ctx, "preempting current operation", "current", s.current, "reason", op)
		s.advance(ctx)
	}
}

// advance starts the next operation if the scheduler is idle. A current
// operation seen here never finished and is cancelled instead; its completion
// re-enters advance. Re-entry after a cascading abort is a loop, not recursion.
func (s *Scheduler) advance(ctx context.Context) {
	for !s.stopping {
		if s.current != nil {
			slog.DebugContext(ctx, "not idle, cancelling current operation", "op", s.current)
			s.cancelCurrent(ctx)
			return
		}
		if s.pending.Empty() {
			slog.DebugContext(ctx, "no operations, returning to idle")
			return
		}

		op := s.pending.Pop()
		s.current = op
		slog.DebugContext(ctx, "[Polled]", "op", op)

		// marked for cancellation while queued: never start it
		if op.state == WaitingInQueueCanceling {
			c := op.caps.Cancel
			if c == nil {
				panic(&MisuseError{Op: op.String(), Reason: "trying to cancel non-cancellable operation"})
			}
			slog.DebugContext(ctx, "[Now Cancelling]", "op", op)
			c.CancelWithoutStarting(op.sink)
			return
		}

		if op.caps.Acquisition {
			s.dispatcher.MarkSensorActive(op.monitor.SensorID(), true)
			op.markedActive = true
		}

		if s.startCurrent(ctx) {
			return
		}
	}
}

// startCurrent starts the current operation or parks it until its cookie is
// promoted. It returns false when the hardware session could not be opened; the
// queue was aborted and the scheduler is idle again.
func (s *Scheduler) startCurrent(ctx context.Context) bool {
	op := s.current
	if op.cookie != 0 && !op.promoted {
		if err := s.authority.NotifyReadyForCookie(ctx, s.cfg.SensorID, op.cookie); err != nil {
			slog.ErrorContext(ctx, "notifying readiness authority failed", "cookie", op.cookie, "error", err)
		}
		op.state = WaitingForCookie
		slog.DebugContext(ctx, "waiting for cookie before starting", "op", op)
		return true
	}

	if op.unstartable() {
		s.abortQueue(ctx)
		return false
	}

	op.state = Started
	op.started = time.Now().UTC()
	slog.DebugContext(ctx, "[Starting]", "op", op)
	op.monitor.Start(op.sink)
	return true
}

// abortQueue fails the current operation and everything queued behind it at
// this moment. Operations queued behind e.g. a failed user switch must not run
// against the previous session.
func (s *Scheduler) abortQueue(ctx context.Context) {
	op := s.current
	n := s.pending.Len()
	slog.ErrorContext(ctx, "[Unable To Start]", "op", op, "last_pending", s.pending.Last())

	op.caps.Hardware.UnableToStart()
	s.finish(ctx, op, false, true)

	for i := range n {
		next := s.pending.Pop()
		if next == nil {
			slog.ErrorContext(ctx, "null operation", "index", i, "expected_length", n)
			break
		}
		if h := next.caps.Hardware; h != nil {
			h.UnableToStart()
		}
		s.finish(ctx, next, false, true)
		slog.WarnContext(ctx, "[Aborted Operation]", "op", next)
	}
	s.current = nil
}

// cancelCurrent signals cancellation to the current operation. Cancelling a
// non-cancellable operation panics.
func (s *Scheduler) cancelCurrent(ctx context.Context) {
	op := s.current
	switch op.state {
	case Started:
		c := op.caps.Cancel
		if c == nil {
			panic(&MisuseError{Op: op.String(), Reason: "trying to cancel non-cancellable operation"})
		}
		op.state = Canceling
		slog.DebugContext(ctx, "[Cancelling]", "op", op)
		c.Cancel()
	case WaitingForCookie:
		c := op.caps.Cancel
		if c == nil {
			panic(&MisuseError{Op: op.String(), Reason: "trying to cancel non-cancellable operation"})
		}
		op.state = Canceling
		slog.DebugContext(ctx, "[Cancelling] before start", "op", op)
		c.CancelWithoutStarting(op.sink)
	case Canceling, WaitingInQueueCanceling:
		slog.DebugContext(ctx, "cancel already invoked", "op", op)
	default:
		slog.ErrorContext(ctx, "unexpected state of current operation", "op", op)
	}
}

func (s *Scheduler) cancel(ctx context.Context, id uuid.UUID) {
	if op := s.current; op != nil && op.ticket.id == id {
		s.cancelCurrent(ctx)
		return
	}
	op := s.pending.Find(id)
	if op == nil {
		slog.DebugContext(ctx, "no operation to cancel", "id", id)
		return
	}
	if op.state == WaitingInQueue {
		op.state = WaitingInQueueCanceling
		slog.DebugContext(ctx, "[Marked for cancel]", "op", op)
	}
}

func (s *Scheduler) promote(ctx context.Context, cookie int) {
	op := s.current
	if cookie == 0 || op == nil || op.state != WaitingForCookie || op.cookie != cookie {
		slog.WarnContext(ctx, "no operation waiting for cookie: ignoring", "cookie", cookie, "current", op)
		return
	}
	if s.stopping {
		return
	}
	op.promoted = true
	if !s.startCurrent(ctx) {
		s.advance(ctx)
	}
}

// finished handles a completion signal of op, or of the operation running m
// when the signal came through the shared callback. Signals of operations which
// are neither current nor queued (already finished, or never submitted here)
// are ignored.
func (s *Scheduler) finished(ctx context.Context, op *Operation, m Monitor, success bool) {
	if op == nil {
		op = s.lookup(m)
	}
	switch {
	case op == nil || op.state == Finished:
		slog.DebugContext(ctx, "completion of unknown or finished operation: ignoring", "monitor", describe(m))
		return
	case op != s.current:
		if !s.pending.Remove(op) {
			slog.DebugContext(ctx, "completion of operation not owned by scheduler: ignoring", "op", op)
			return
		}
		slog.WarnContext(ctx, "queued operation reported completion before it started", "op", op)
		s.finish(ctx, op, false, false)
		return
	}

	if op.started.IsZero() {
		success = false
	}
	slog.DebugContext(ctx, "[Finished]", "op", op, "success", success)
	s.finish(ctx, op, success, false)
	s.current = nil
	s.advance(ctx)
}

// lookup finds the current or the first queued operation running m.
func (s *Scheduler) lookup(m Monitor) *Operation {
	if op := s.current; op != nil && op.monitor == m {
		return op
	}
	return s.pending.FindMonitor(m)
}

// finish finishes op once and publishes its record.
func (s *Scheduler) finish(ctx context.Context, op *Operation, success, aborted bool) {
	last := op.state
	if !op.finish(success) {
		return
	}
	if op.markedActive {
		s.dispatcher.MarkSensorActive(op.monitor.SensorID(), false)
	}
	rec := Record{
		ID:        op.ticket.id,
		SensorID:  s.cfg.SensorID,
		Monitor:   describe(op.monitor),
		LastState: last,
		Success:   success,
		Aborted:   aborted,
		Submitted: op.submitted,
		Started:   op.started,
		Finished:  op.finished,
	}
	s.remember(rec)
	for _, o := range s.observers {
		o.Observe(ctx, rec)
	}
}
