package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
)

func (f *fixture) newRequest(t *testing.T, process string, at time.Time) *schema.ProcessInstanceCreationRequest {
	t.Helper()
	req := schema.NewRequest(process, "ann", map[string]any{"component": "c-1"})
	req.RequestTime = at
	if err := f.requests.Save(context.Background(), req); err != nil {
		t.Fatalf("Save request failed: %v", err)
	}
	return req
}

func (f *fixture) request(t *testing.T, id int64) *schema.ProcessInstanceCreationRequest {
	t.Helper()
	req, err := f.requests.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) failed: %v", id, err)
	}
	return req
}

// A request survives any number of transient failures and is created once
// the remote answers; it is never rejected for being unreachable.
func TestFulfillRequests_SurvivesTimeouts(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	req := f.newRequest(t, "review", time.Now().Add(-time.Minute))
	f.remote.FailNext(gateway.OpStartProcess, gateway.ErrTimeout, 3)

	for i := 1; i <= 3; i++ {
		report, err := f.engine.FulfillRequests(ctx)
		if !gateway.IsRetryable(err) {
			t.Fatalf("cycle %d: got %v, want retryable error", i, err)
		}
		if report.Deferred != 1 {
			t.Errorf("cycle %d: report = %+v", i, report)
		}
		got := f.request(t, req.ID)
		if got.Status != schema.RequestRequested {
			t.Fatalf("cycle %d: status = %s, want REQUESTED", i, got.Status)
		}
		if got.SyncTime == nil || got.SyncMessage == "" {
			t.Errorf("cycle %d: deferral not recorded: %+v", i, got)
		}
	}

	report, err := f.engine.FulfillRequests(ctx)
	if err != nil {
		t.Fatalf("fourth cycle failed: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("report = %+v, want one created", report)
	}
	got := f.request(t, req.ID)
	if got.Status != schema.RequestCreated || got.WfID == "" {
		t.Fatalf("got %s wf=%q, want CREATED with workflow id", got.Status, got.WfID)
	}
	if got.SyncMessage != "" {
		t.Errorf("SyncMessage = %q, want cleared", got.SyncMessage)
	}
	if v, _ := got.Variables.Get("component"); v != "c-1" {
		t.Errorf("confirmed variables = %v", got.Variables)
	}

	// Terminal: later cycles leave it alone.
	report, err = f.engine.FulfillRequests(ctx)
	if err != nil || report.Attempted != 0 {
		t.Errorf("fifth cycle: %+v, %v", report, err)
	}
	if calls := f.remote.Calls(gateway.OpStartProcess); calls != 4 {
		t.Errorf("StartProcess calls = %d, want 4", calls)
	}
	if n := len(f.remote.Processes()); n != 1 {
		t.Errorf("%d processes started, want exactly 1", n)
	}
}

func TestFulfillRequests_RejectionContinues(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.remote.DefineProcess("review")
	base := time.Now().Add(-time.Hour)
	bad := f.newRequest(t, "audit", base)
	good := f.newRequest(t, "review", base.Add(time.Minute))

	report, err := f.engine.FulfillRequests(ctx)
	if err != nil {
		t.Fatalf("FulfillRequests failed: %v", err)
	}
	if report.Attempted != 2 || report.Rejected != 1 || report.Created != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Updated) != 2 {
		t.Errorf("Updated = %d, want 2", len(report.Updated))
	}

	got := f.request(t, bad.ID)
	if got.Status != schema.RequestRejected || got.SyncMessage == "" || got.SyncTime == nil {
		t.Errorf("rejected request = %+v", got)
	}
	if got := f.request(t, good.ID); got.Status != schema.RequestCreated {
		t.Errorf("good request status = %s", got.Status)
	}

	completed, err := f.requests.GetCompleted(ctx)
	if err != nil {
		t.Fatalf("GetCompleted failed: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("GetCompleted = %d, want 2", len(completed))
	}
}

func TestFulfillRequests_TransientStopsPhase(t *testing.T) {
	f := setupEngine(t)
	base := time.Now().Add(-time.Hour)
	first := f.newRequest(t, "review", base)
	second := f.newRequest(t, "review", base.Add(time.Minute))
	f.remote.FailNext(gateway.OpStartProcess, gateway.ErrUnavailable, 1)

	report, err := f.engine.FulfillRequests(context.Background())
	if !gateway.IsRetryable(err) {
		t.Fatalf("got %v, want retryable error", err)
	}
	if report.Attempted != 1 {
		t.Errorf("Attempted = %d, want 1", report.Attempted)
	}
	if got := f.request(t, first.ID); got.SyncTime == nil {
		t.Error("first request deferral not recorded")
	}
	if got := f.request(t, second.ID); got.SyncTime != nil || got.Status != schema.RequestRequested {
		t.Errorf("second request touched: %+v", got)
	}
}

func TestFulfillRequests_DeadlineStillRecords(t *testing.T) {
	f := setupEngine(t)
	req := f.newRequest(t, "review", time.Now())
	f.remote.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.engine.FulfillRequests(ctx)
	if !gateway.IsRetryable(err) {
		t.Fatalf("got %v, want retryable error", err)
	}
	got := f.request(t, req.ID)
	if got.Status != schema.RequestRequested || got.SyncTime == nil {
		t.Errorf("got %+v, want deferred REQUESTED", got)
	}
}
