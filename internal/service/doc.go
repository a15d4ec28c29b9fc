package service

// Package service wires the per sensor schedulers into a daemon.
//
// Overview
// The Supervisor builds, for every configured sensor, a simulated hal.Sensor
// and a sched.Scheduler. Schedulers share the readiness authority (a webhook
// or a logging one), the availability dispatcher and the journal, but nothing
// else: two sensors never wait for each other.
//
// Data flow:
//
//   control API        Supervisor                 Scheduler{sensor}       hal.Client
//       |                  |                            |                     |
//   submit ------------->  | Submit(client) ----------> | queue / advance     |
//       |                  |                            | Start(cb) --------->| session
//   promote cookie ----->  | PromoteCookie -----------> | start waiting op    |
//   cancel ------------->  | RequestCancel -----------> | Cancel() ---------->|
//       |                  |                            |<--- OnFinished -----|
//       |                  |<-- ticket resolved --------|                     |
//       |                  |                            |--- Record --------> journal
//
// gocron triggers Maintain, which submits a cleanup to every sensor. Do runs
// the scheduler loops in an errgroup; on return every pending operation is
// resolved as failed and the journal is flushed and closed.
//
// Invariants:
//   - At most one operation per sensor holds the hardware.
//   - Every submitted operation is resolved exactly once, shutdown included.
