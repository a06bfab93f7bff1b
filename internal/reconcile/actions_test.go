package reconcile

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "claim", want: Action{Verb: VerbClaim}},
		{in: " Complete ", want: Action{Verb: VerbComplete}},
		{in: "delegate:bob", want: Action{Verb: VerbDelegate, Targets: []string{"bob"}}},
		{in: "forward: carl ", want: Action{Verb: VerbForward, Targets: []string{"carl"}}},
		{in: "nominate:ann, bob", want: Action{Verb: VerbNominate, Targets: []string{"ann", "bob"}}},
		{in: "delegate", wantErr: true},
		{in: "delegate:a,b", wantErr: true},
		{in: "nominate:", wantErr: true},
		{in: "start:now", wantErr: true},
		{in: "", wantErr: true},
		{in: "teleport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAction(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAction(%q) failed: %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerbs_AllParse(t *testing.T) {
	for _, v := range Verbs() {
		in := v
		switch v {
		case VerbDelegate, VerbForward, VerbNominate:
			in = v + ":bob"
		}
		if _, err := ParseAction(in); err != nil {
			t.Errorf("ParseAction(%q) failed: %v", in, err)
		}
	}
}

func TestPushActions(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.remote.AddTask(schema.Task{ID: 1, Status: schema.StatusReserved, ActualOwner: "ann"})
	f.remote.AddTask(schema.Task{ID: 2, Status: schema.StatusReserved, ActualOwner: "ann"})
	f.remote.AddTask(schema.Task{ID: 3, Status: schema.StatusInProgress, ActualOwner: "ann"})
	f.remote.AddTask(schema.Task{ID: 4, Status: schema.StatusReserved, ActualOwner: "bob"})
	out := schema.Variables{{Key: "approved", Value: "yes"}}
	f.seedLocal(t,
		&schema.LocalTask{ID: 1, Status: schema.StatusReserved, Owner: "ann", Action: "start", ActionStatus: schema.ActionPending},
		&schema.LocalTask{ID: 2, Status: schema.StatusReserved, Owner: "ann", Action: "complete", ActionStatus: schema.ActionPending},
		&schema.LocalTask{ID: 3, Status: schema.StatusInProgress, Owner: "ann", Action: "complete", ActionStatus: schema.ActionPending, OutputVariables: out},
		&schema.LocalTask{ID: 4, Status: schema.StatusReserved, Owner: "bob", Action: "start", ActionStatus: schema.ActionPending},
	)

	report, err := f.engine.PushActions(ctx, "ann")
	if err != nil {
		t.Fatalf("PushActions failed: %v", err)
	}
	if report.Attempted != 3 || report.Done != 2 || report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	want := map[int64]string{1: schema.ActionDone, 2: schema.ActionFailed, 3: schema.ActionDone, 4: schema.ActionPending}
	for id, status := range want {
		if got := f.local(t, id).ActionStatus; got != status {
			t.Errorf("task %d action status = %q, want %q", id, got, status)
		}
	}

	if remote, _ := f.remote.Task(1); remote.Status != schema.StatusInProgress {
		t.Errorf("task 1 remote status = %s, want InProgress", remote.Status)
	}
	remote, _ := f.remote.Task(3)
	if remote.Status != schema.StatusCompleted || !remote.OutputVariables.Equal(out) {
		t.Errorf("task 3 remote = %s %v", remote.Status, remote.OutputVariables)
	}

	// Nothing left to push.
	report, err = f.engine.PushActions(ctx, "ann")
	if err != nil {
		t.Fatalf("second PushActions failed: %v", err)
	}
	if report.Attempted != 0 {
		t.Errorf("second push attempted %d actions", report.Attempted)
	}
}

func TestPushActions_UnknownActionFailsWithoutCall(t *testing.T) {
	f := setupEngine(t)
	f.seedLocal(t, &schema.LocalTask{ID: 1, Status: schema.StatusReserved, Owner: "ann", Action: "teleport", ActionStatus: schema.ActionPending})

	report, err := f.engine.PushActions(context.Background(), "ann")
	if err != nil {
		t.Fatalf("PushActions failed: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if got := f.local(t, 1).ActionStatus; got != schema.ActionFailed {
		t.Errorf("ActionStatus = %q, want FAILED", got)
	}
}

func TestPushActions_TransientKeepsPending(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.remote.AddTask(schema.Task{ID: 1, Status: schema.StatusReserved, ActualOwner: "ann"})
	f.remote.AddTask(schema.Task{ID: 2, Status: schema.StatusReserved, ActualOwner: "ann"})
	f.seedLocal(t,
		&schema.LocalTask{ID: 1, Status: schema.StatusReserved, Owner: "ann", Action: "release", ActionStatus: schema.ActionPending},
		&schema.LocalTask{ID: 2, Status: schema.StatusReserved, Owner: "ann", Action: "start", ActionStatus: schema.ActionPending},
	)
	f.remote.FailNext(gateway.OpStart, gateway.ErrTimeout, 1)

	report, err := f.engine.PushActions(ctx, "ann")
	if !gateway.IsRetryable(err) {
		t.Fatalf("got %v, want retryable error", err)
	}
	if report.Done != 1 {
		t.Errorf("report = %+v, want the first action done", report)
	}
	if got := f.local(t, 1).ActionStatus; got != schema.ActionDone {
		t.Errorf("task 1 action status = %q, want DONE", got)
	}
	if got := f.local(t, 2).ActionStatus; got != schema.ActionPending {
		t.Errorf("task 2 action status = %q, want PENDING", got)
	}

	if _, err := f.engine.PushActions(ctx, "ann"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := f.local(t, 2).ActionStatus; got != schema.ActionDone {
		t.Errorf("task 2 action status after retry = %q, want DONE", got)
	}
}

// startHook runs a callback while a Start call is in flight.
type startHook struct {
	gateway.Gateway
	during func()
}

func (g *startHook) Start(ctx context.Context, id int64, userID string) error {
	if g.during != nil {
		g.during()
	}
	return g.Gateway.Start(ctx, id, userID)
}

func TestPushActions_RequeueDuringPushKeepsNewAction(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.remote.AddTask(schema.Task{ID: 1, Status: schema.StatusReserved, ActualOwner: "ann"})
	f.seedLocal(t, &schema.LocalTask{ID: 1, Status: schema.StatusReserved, Owner: "ann"})
	if err := f.engine.QueueAction(ctx, "ann", 1, "start"); err != nil {
		t.Fatalf("QueueAction failed: %v", err)
	}

	hook := &startHook{Gateway: f.remote}
	hook.during = func() {
		if err := f.engine.QueueAction(ctx, "ann", 1, "complete"); err != nil {
			t.Errorf("QueueAction during push failed: %v", err)
		}
	}
	pusher := New(hook, f.tasks, f.requests, Options{Logger: log.New(io.Discard, "", 0)})

	report, err := pusher.PushActions(ctx, "ann")
	if err != nil {
		t.Fatalf("PushActions failed: %v", err)
	}
	if report.Superseded != 1 || report.Done != 0 {
		t.Errorf("report = %+v, want one superseded push", report)
	}
	if remote, _ := f.remote.Task(1); remote.Status != schema.StatusInProgress {
		t.Errorf("remote status = %s, want InProgress", remote.Status)
	}

	got := f.local(t, 1)
	if got.Action != "complete" || got.ActionStatus != schema.ActionPending {
		t.Fatalf("re-queued action lost: %q/%q", got.Action, got.ActionStatus)
	}

	// The next push sends the newer action.
	report, err = f.engine.PushActions(ctx, "ann")
	if err != nil {
		t.Fatalf("second PushActions failed: %v", err)
	}
	if report.Done != 1 {
		t.Errorf("second report = %+v, want one done", report)
	}
	if remote, _ := f.remote.Task(1); remote.Status != schema.StatusCompleted {
		t.Errorf("remote status = %s, want Completed", remote.Status)
	}
}

func TestPushActions_OnlyQueuingUserPushes(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.remote.AddTask(schema.Task{ID: 5, Status: schema.StatusReady}, "ann", "bob")
	f.seedLocal(t, &schema.LocalTask{ID: 5, Status: schema.StatusReady})
	if err := f.engine.QueueAction(ctx, "ann", 5, "claim"); err != nil {
		t.Fatalf("QueueAction failed: %v", err)
	}

	report, err := f.engine.PushActions(ctx, "bob")
	if err != nil {
		t.Fatalf("PushActions(bob) failed: %v", err)
	}
	if report.Attempted != 0 {
		t.Errorf("bob pushed ann's action: %+v", report)
	}
	if remote, _ := f.remote.Task(5); remote.ActualOwner != "" {
		t.Errorf("remote owner after bob's push = %q, want none", remote.ActualOwner)
	}
	if got := f.local(t, 5).ActionStatus; got != schema.ActionPending {
		t.Errorf("ActionStatus after bob's push = %q, want PENDING", got)
	}

	report, err = f.engine.PushActions(ctx, "ann")
	if err != nil {
		t.Fatalf("PushActions(ann) failed: %v", err)
	}
	if report.Done != 1 {
		t.Errorf("report = %+v, want one done", report)
	}
	if remote, _ := f.remote.Task(5); remote.ActualOwner != "ann" || remote.Status != schema.StatusReserved {
		t.Errorf("remote = %s/%q, want Reserved/ann", remote.Status, remote.ActualOwner)
	}
}
