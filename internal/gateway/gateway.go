// Package gateway defines the boundary to the remote workflow server.
//
// The reconciliation engine talks to the remote only through the Gateway
// interface. Three implementations live here:
//   - Client speaks a small JSON envelope over a websocket connection.
//   - Memory is an in-process remote used by tests and `remote serve`.
//   - WithTimeout decorates any Gateway with a per-call deadline.
//
// Every method may block on the network and must be called off any UI
// goroutine. Failures are reported as *RemoteError.
package gateway

import (
	"context"

	"github.com/termwork/tasksync/internal/schema"
)

// Verb names. They double as RPC method names and as keys for fault
// injection and call counting on Memory.
const (
	OpTaskByID       = "getTaskById"
	OpTasksOwned     = "getTasksOwnedByStatus"
	OpTasksPotential = "getTasksAssignedAsPotentialOwnerByStatus"
	OpClaim          = "claim"
	OpComplete       = "complete"
	OpDelegate       = "delegate"
	OpExit           = "exit"
	OpFail           = "fail"
	OpForward        = "forward"
	OpRelease        = "release"
	OpResume         = "resume"
	OpSkip           = "skip"
	OpStart          = "start"
	OpStop           = "stop"
	OpSuspend        = "suspend"
	OpNominate       = "nominate"
	OpContentByID    = "getContentById"
	OpAttachmentByID = "getAttachmentById"
	OpStartProcess   = "startProcess"
)

// Gateway is the verb set of the remote workflow server.
type Gateway interface {
	// TaskByID returns full detail for one task.
	TaskByID(ctx context.Context, id int64) (*schema.Task, error)

	// TasksOwnedByStatus lists tasks owned by userID whose status is in statuses.
	TasksOwnedByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error)

	// TasksAssignedAsPotentialOwnerByStatus lists tasks userID could claim.
	TasksAssignedAsPotentialOwnerByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error)

	Claim(ctx context.Context, id int64, userID string) error
	Complete(ctx context.Context, id int64, userID string, vars schema.Variables) error
	Delegate(ctx context.Context, id int64, userID, targetUserID string) error
	Exit(ctx context.Context, id int64, userID string) error
	Fail(ctx context.Context, id int64, userID string, vars schema.Variables) error
	Forward(ctx context.Context, id int64, userID, targetUserID string) error
	Release(ctx context.Context, id int64, userID string) error
	Resume(ctx context.Context, id int64, userID string) error
	Skip(ctx context.Context, id int64, userID string) error
	Start(ctx context.Context, id int64, userID string) error
	Stop(ctx context.Context, id int64, userID string) error
	Suspend(ctx context.Context, id int64, userID string) error
	Nominate(ctx context.Context, id int64, userID string, candidates []string) error

	ContentByID(ctx context.Context, id int64) (*schema.Content, error)
	AttachmentByID(ctx context.Context, id int64) (*schema.Content, error)

	// StartProcess asks the remote to start a process instance.
	StartProcess(ctx context.Context, processName string, params map[string]any) (*schema.ProcessInstance, error)
}
