package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

// FulfillRequests implements Reconciler.FulfillRequests.
func (e *engine) FulfillRequests(ctx context.Context) (*RequestReport, error) {
	report := &RequestReport{}

	pending, err := e.requests.GetPending(ctx)
	if err != nil {
		return report, err
	}

	// Outcomes are recorded even when ctx was cancelled mid-call: the remote
	// may already have acted on the request.
	saveCtx := context.WithoutCancel(ctx)

	for _, req := range pending {
		report.Attempted++

		pi, callErr := e.gw.StartProcess(ctx, req.ProcessName, req.Params)
		now := e.now()
		switch {
		case callErr == nil:
			req.MarkCreated(pi, now)
		case gateway.IsRejection(callErr):
			req.MarkRejected(callErr.Error(), now)
		default:
			req.MarkDeferred(callErr.Error(), now)
		}

		if err := e.requests.Save(saveCtx, req); err != nil {
			if errors.Is(err, store.ErrTerminalRequest) {
				e.logger.Printf("Request %d was finalized elsewhere, skipping: %v", req.ID, err)
				continue
			}
			return report, err
		}
		report.Updated = append(report.Updated, req)

		switch req.Status {
		case schema.RequestCreated:
			report.Created++
			e.logger.Printf("Request %d: started %s as %s", req.ID, req.ProcessName, req.WfID)
		case schema.RequestRejected:
			report.Rejected++
			e.logger.Printf("Request %d: %s rejected: %s", req.ID, req.ProcessName, req.SyncMessage)
		default:
			report.Deferred++
			return report, fmt.Errorf("failed to start %s for request %d: %w", req.ProcessName, req.ID, callErr)
		}
	}

	return report, nil
}
