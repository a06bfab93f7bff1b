// Package reconcile keeps the local task cache and the process request
// queue consistent with the remote workflow server.
//
// # Phases
//
// One reconciliation cycle is made of independent phases, each driven by
// the sync facade in this order:
//
//  1. FulfillRequests pushes every REQUESTED process request.
//  2. PushActions sends actions queued against local tasks.
//  3. ClaimBatch claims up to N tasks the user could own (optional).
//  4. FetchTasks pulls owned tasks and recovers open ones the owned
//     filter no longer returns.
//
// # Consistency
//
// Remote state always wins on pull: status and owner are overwritten by
// the last fetch. A local action queued while a pull is in flight is not
// overwritten, but it is pushed against whatever status the last fetch
// recorded; the remote decides whether it still applies.
//
// FetchTasks commits all of its writes in one transaction or none.
// FulfillRequests and PushActions commit each outcome as soon as the
// remote answered, so a started process is never forgotten because a later
// call in the same cycle failed.
//
// # Errors
//
// A transient remote failure (see gateway.IsRetryable) aborts the phase and
// is returned. A rejection of one item is recorded on that item and the
// phase continues. Store failures are returned as *store.DatastoreError.
package reconcile
