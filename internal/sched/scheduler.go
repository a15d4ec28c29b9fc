package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/sensord/internal/log"
)

var (
	ErrStopped = errors.New("scheduler stopped")
	ErrRunning = errors.New("scheduler loop already running")
)

// MisuseError is the panic value for a capability contract violation, e.g.
// cancelling an operation whose Monitor is not cancellable.
type MisuseError struct {
	Op     string
	Reason string
}

func (e *MisuseError) Error() string {
	return "mis-implemented client or scheduler: " + e.Reason + ": " + e.Op
}

type Config struct {
	SensorID int
	Name     string
	// History is the number of finished operations kept for Status.
	History int
}

// Record describes a finished operation.
type Record struct {
	ID        uuid.UUID `json:"id"`
	SensorID  int       `json:"sensor"`
	Monitor   string    `json:"monitor"`
	LastState State     `json:"last_state"`
	Success   bool      `json:"success"`
	Aborted   bool      `json:"aborted"`
	Submitted time.Time `json:"submitted"`
	Started   time.Time `json:"started,omitzero"`
	Finished  time.Time `json:"finished"`
}

// Observer is notified about every finished operation from the scheduler loop.
// Observe must not block.
type Observer interface {
	Observe(ctx context.Context, rec Record)
}

type OperationInfo struct {
	ID        uuid.UUID `json:"id"`
	Monitor   string    `json:"monitor"`
	State     State     `json:"state"`
	Cookie    int       `json:"cookie"`
	Submitted time.Time `json:"submitted"`
	Started   time.Time `json:"started,omitzero"`
}

// Status is a snapshot of a scheduler.
type Status struct {
	SensorID int             `json:"sensor"`
	Name     string          `json:"name"`
	Current  *OperationInfo  `json:"current,omitempty"`
	Pending  []OperationInfo `json:"pending"`
	Recent   []Record        `json:"recent"`
}

// Scheduler runs operations of one sensor strictly one at a time. Create one
// per sensor with New and run its loop with Do.
type Scheduler struct {
	cfg        Config
	authority  ReadinessAuthority
	dispatcher AvailabilityDispatcher
	observers  []Observer
	inbox      *inbox
	callback   *internalCallback
	running    atomic.Bool

	// owned by the loop
	pending  *Queue
	current  *Operation
	recent   []Record
	stopping bool
}

// New creates a scheduler. Nil collaborators are replaced by no-ops.
func New(cfg Config, authority ReadinessAuthority, dispatcher AvailabilityDispatcher) *Scheduler {
	if authority == nil {
		authority = noopAuthority{}
	}
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	if cfg.History < 0 {
		cfg.History = 0
	}
	s := &Scheduler{
		cfg:        cfg,
		authority:  authority,
		dispatcher: dispatcher,
		inbox:      newInbox(),
		pending:    NewQueue(),
	}
	s.callback = &internalCallback{s: s}
	return s
}

// WithObserver adds an observer of finished operations. Call before Do.
func (s *Scheduler) WithObserver(o Observer) *Scheduler {
	s.observers = append(s.observers, o)
	return s
}

func (s *Scheduler) SensorID() int {
	return s.cfg.SensorID
}

// Callback returns the completion sink shared by all operations of s. It
// identifies the operation by its Monitor. Monitors started by the scheduler
// get a sink bound to their own operation instead, so a late signal of a
// finished run can't complete a resubmission of the same Monitor.
func (s *Scheduler) Callback() Callback {
	return s.callback
}

// Submit enqueues m and returns its ticket. It never fails: after the loop
// stopped, the ticket (and done) resolve immediately with false.
func (s *Scheduler) Submit(m Monitor, done CompletionFunc) *Ticket {
	if m == nil {
		panic(&MisuseError{Op: "<nil>", Reason: "submitting nil monitor"})
	}
	op := newOperation(m, done)
	op.sink = &operationCallback{s: s, op: op}
	if !s.inbox.push(event{kind: eventSubmit, op: op}) {
		op.finish(false)
	}
	return op.ticket
}

// RequestCancel cancels a queued or current operation. Unknown or finished ids
// are ignored.
func (s *Scheduler) RequestCancel(id uuid.UUID) {
	s.inbox.push(event{kind: eventCancel, id: id})
}

// PromoteCookie starts the current operation waiting for cookie.
func (s *Scheduler) PromoteCookie(cookie int) {
	s.inbox.push(event{kind: eventPromote, cookie: cookie})
}

// Status returns a snapshot taken on the loop. It blocks until the loop
// handles the request or ctx is done.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if !s.inbox.push(event{kind: eventStatus, reply: reply}) {
		return Status{}, ErrStopped
	}
	select {
	case st, ok := <-reply:
		if !ok {
			return Status{}, ErrStopped
		}
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Do runs the scheduler loop until ctx is cancelled. On return every pending
// operation finishes with success=false and the scheduler can't be reused.
func (s *Scheduler) Do(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	ctx = log.ContextAttrs(ctx, slog.Group("sched",
		slog.Int("sensor", s.cfg.SensorID),
		slog.String("name", s.cfg.Name),
	))
	slog.DebugContext(ctx, "starting a scheduler loop")
	defer s.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.inbox.signal:
			s.drain(ctx)
		}
	}
}

// drain handles queued events, including those pushed while handling.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		events := s.inbox.take()
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			s.handle(ctx, ev)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventSubmit:
		s.submit(ctx, ev.op)
	case eventCancel:
		s.cancel(ctx, ev.id)
	case eventFinished:
		s.finished(ctx, ev.op, ev.monitor, ev.success)
	case eventPromote:
		s.promote(ctx, ev.cookie)
	case eventStatus:
		ev.reply <- s.status()
	default:
		slog.WarnContext(ctx, "event not supported: ignoring", "kind", ev.kind)
	}
}

func (s *Scheduler) shutdown(ctx context.Context) {
	s.stopping = true
	for _, ev := range s.inbox.close() {
		if ev.kind == eventStatus {
			close(ev.reply)
			continue
		}
		s.handle(ctx, ev)
	}

	if op := s.current; op != nil {
		slog.DebugContext(ctx, "stopping: cancelling current operation", "op", op)
		if c := op.caps.Cancel; c != nil {
			switch op.state {
			case Started:
				c.Cancel()
			case WaitingForCookie:
				c.CancelWithoutStarting(op.sink)
			}
		}
		s.finish(ctx, op, false, true)
		s.current = nil
	}
	for !s.pending.Empty() {
		op := s.pending.Pop()
		slog.DebugContext(ctx, "stopping: dropping operation", "op", op)
		s.finish(ctx, op, false, true)
	}
	slog.DebugContext(ctx, "scheduler loop stopped")
}

func (s *Scheduler) status() Status {
	st := Status{
		SensorID: s.cfg.SensorID,
		Name:     s.cfg.Name,
		Pending:  make([]OperationInfo, 0, s.pending.Len()),
		Recent:   append([]Record(nil), s.recent...),
	}
	if s.current != nil {
		info := s.current.info()
		st.Current = &info
	}
	for op := range s.pending.All() {
		st.Pending = append(st.Pending, op.info())
	}
	return st
}

func (s *Scheduler) remember(rec Record) {
	if s.cfg.History == 0 {
		return
	}
	if len(s.recent) == s.cfg.History {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, rec)
}

type operationCallback struct {
	s  *Scheduler
	op *Operation
}

func (c *operationCallback) OnFinished(m Monitor, success bool) {
	if !c.s.inbox.push(event{kind: eventFinished, op: c.op, monitor: m, success: success}) {
		slog.Debug("completion after scheduler stopped: ignoring", "sensor", c.s.cfg.SensorID, "op", c.op)
	}
}

type internalCallback struct {
	s *Scheduler
}

func (c *internalCallback) OnFinished(m Monitor, success bool) {
	if !c.s.inbox.push(event{kind: eventFinished, monitor: m, success: success}) {
		slog.Debug("completion after scheduler stopped: ignoring", "sensor", c.s.cfg.SensorID, "monitor", describe(m))
	}
}
