// Package daemon provides the sync facade that schedules reconciliation
// cycles against the remote workflow server.
//
// # Architecture
//
// A Daemon owns a reconcile.Reconciler and runs cycles on a bounded pool of
// workers:
//
//   - SynchronizeWithRemote schedules one cycle for a user and returns at
//     once. The returned channel delivers the Result and may be ignored.
//   - A call for a user whose cycle is still running joins that cycle and
//     receives its result instead of starting a second one.
//   - Start runs a cycle for the configured user on every tick until its
//     context is cancelled.
//
// One cycle runs its phases strictly in order: process requests, queued
// task actions, the optional batch claim, then the task pull. The first
// phase that fails ends the cycle.
//
// # Status
//
// Status reports whether a user's cycle is running and how the last one
// ended. Subscribe streams the same information as events:
//
//	events, cancel := d.Subscribe()
//	defer cancel()
//	for ev := range events {
//	    log.Printf("%s %s", ev.Type, ev.UserID)
//	}
//
// # Failure
//
// A remote failure is logged and the next cycle retries. A local datastore
// failure halts the daemon: every later cycle fails with ErrHalted until
// Resume is called.
package daemon
