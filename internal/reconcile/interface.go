package reconcile

import (
	"context"

	"github.com/termwork/tasksync/internal/schema"
)

// Reconciler runs the phases of a reconciliation cycle.
//
// Every method blocks on the network and on the local store. Calls for the
// same user must not overlap; the sync facade guarantees that.
type Reconciler interface {
	// FetchTasks pulls the tasks userID owns (Reserved, InProgress) and
	// merges them into the local store, then re-reads every task the store
	// still records as open and owned by userID but the remote no longer
	// listed. All writes are committed in one transaction.
	//
	// Example:
	//   report, err := r.FetchTasks(ctx, "ann")
	FetchTasks(ctx context.Context, userID string) (*FetchReport, error)

	// ClaimBatch claims at most limit tasks that userID is a potential
	// owner of. The local store is not touched; the next FetchTasks picks
	// the claimed tasks up.
	ClaimBatch(ctx context.Context, userID string, limit int) (*ClaimReport, error)

	// FulfillRequests asks the remote to start a process for every
	// REQUESTED request, oldest first. It stops at the first transient
	// failure. The returned report is never nil and covers the work done
	// before an error.
	FulfillRequests(ctx context.Context) (*RequestReport, error)

	// QueueAction records an action userID wants applied to a local task.
	// It is pushed by the next PushActions for that user.
	QueueAction(ctx context.Context, userID string, taskID int64, action string) error

	// PushActions sends every PENDING action queued by userID to the
	// remote. An outcome is only recorded while the action it answers is
	// still the one queued. The returned report is never nil.
	PushActions(ctx context.Context, userID string) (*ActionReport, error)
}

// FetchReport summarizes one FetchTasks call.
type FetchReport struct {
	// Remote is the number of owned tasks the remote listed.
	Remote int `json:"remote"`
	// Created counts listed tasks that were new locally.
	Created int `json:"created"`
	// Updated counts listed tasks whose owner or status changed.
	Updated int `json:"updated"`
	// Unchanged counts tasks that needed no write.
	Unchanged int `json:"unchanged"`
	// Recovered counts unlisted open tasks refreshed from their detail.
	Recovered int `json:"recovered"`
	// Skipped counts tasks left alone because of a per-task rejection or
	// an invalid record.
	Skipped int `json:"skipped"`
	// Writes is the number of task writes committed.
	Writes int `json:"writes"`
	// Changed holds the committed tasks, in write order.
	Changed []*schema.LocalTask `json:"-"`
}

// ClaimReport summarizes one ClaimBatch call.
type ClaimReport struct {
	Candidates int     `json:"candidates"`
	Claimed    []int64 `json:"claimed"`
	Failed     int     `json:"failed"`
}

// RequestReport summarizes one FulfillRequests call.
type RequestReport struct {
	Attempted int `json:"attempted"`
	Created   int `json:"created"`
	Rejected  int `json:"rejected"`
	Deferred  int `json:"deferred"`
	// Updated holds every request whose new state was committed.
	Updated []*schema.ProcessInstanceCreationRequest `json:"-"`
}

// ActionReport summarizes one PushActions call.
type ActionReport struct {
	Attempted int `json:"attempted"`
	Done      int `json:"done"`
	Failed    int `json:"failed"`
	// Superseded counts pushes whose action was re-queued before the
	// outcome could be recorded.
	Superseded int `json:"superseded"`
	// Updated holds the ids of tasks whose action status was committed.
	Updated []int64 `json:"-"`
}
