// Package sched implements a single-flight scheduler of operations against one
// exclusive sensor.
//
// Overview
// A Scheduler owns an event loop (Do), a FIFO Queue of pending Operations and
// a pointer to the current Operation. Callers Submit a Monitor and receive a
// Ticket which resolves exactly once. At most one Operation holds the sensor at
// any time; the next one is dequeued only after the current Monitor reports
// completion through the Callback it was started with. Each Operation gets its
// own Callback, so a Monitor may be submitted again once its run finished.
//
// Data flow:
//
//   caller                Scheduler{sensor}                 Monitor
//     |                        |                               |
//   Submit -> inbox ---------->| enqueue, advance if idle      |
//     |                        | cookie == 0 ----- Start(cb) ->|
//     |                        | cookie != 0 -> authority      |
//   PromoteCookie -> inbox --->| ---------------- Start(cb) -->|
//     |                        |<---- cb.OnFinished(m, ok) ----|
//     |<---- done(m, ok) ------| advance                       |
//
// Every entry point (Submit, RequestCancel, PromoteCookie, Callback().OnFinished)
// only appends an event to the inbox, so it is safe from any goroutine and a
// Monitor may report completion synchronously from inside Start.
//
// Invariants:
//   - At most one Operation is Started or Canceling.
//   - The queue never holds the current Operation.
//   - Finished is terminal, the completion callback fires exactly once.
//   - When a hardware session cannot be opened, every Operation queued at that
//     moment is aborted with success=false; later submissions still run.
//   - Cancelling a Monitor without the Cancel capability panics with a
//     *MisuseError.
//
// The scheduler never waits on hardware and manages no timeouts: a Monitor which
// never reports completion stalls its sensor.
package sched
