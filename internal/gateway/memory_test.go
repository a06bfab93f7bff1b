package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/termwork/tasksync/internal/schema"
)

func TestMemory_ClaimStartComplete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddTask(schema.Task{ID: 16, Name: "approve", Status: schema.StatusReady}, "ann", "bob")

	if err := m.Claim(ctx, 16, "carl"); !errors.Is(err, ErrRejected) {
		t.Fatalf("claim by non potential owner: got %v, want rejection", err)
	}
	if err := m.Claim(ctx, 16, "ann"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := m.Claim(ctx, 16, "bob"); !errors.Is(err, ErrRejected) {
		t.Fatalf("second claim: got %v, want rejection", err)
	}
	if err := m.Complete(ctx, 16, "ann", nil); !errors.Is(err, ErrRejected) {
		t.Fatalf("complete before start: got %v, want rejection", err)
	}
	if err := m.Start(ctx, 16, "ann"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := schema.Variables{{Key: "approved", Value: "true"}}
	if err := m.Complete(ctx, 16, "ann", out); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	task, err := m.TaskByID(ctx, 16)
	if err != nil {
		t.Fatalf("TaskByID failed: %v", err)
	}
	if task.Status != schema.StatusCompleted || task.ActualOwner != "ann" {
		t.Errorf("got %s/%s, want Completed/ann", task.Status, task.ActualOwner)
	}
	if v, _ := task.OutputVariables.Get("approved"); v != "true" {
		t.Errorf("output approved = %q", v)
	}
}

func TestMemory_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		owner      string
		op         func(context.Context, *Memory) error
		wantStatus string
		wantOwner  string
		wantErr    error
	}{
		{"release", schema.StatusReserved, "ann", func(ctx context.Context, m *Memory) error { return m.Release(ctx, 1, "ann") }, schema.StatusReady, "", nil},
		{"release by other", schema.StatusReserved, "ann", func(ctx context.Context, m *Memory) error { return m.Release(ctx, 1, "bob") }, schema.StatusReserved, "ann", ErrRejected},
		{"stop", schema.StatusInProgress, "ann", func(ctx context.Context, m *Memory) error { return m.Stop(ctx, 1, "ann") }, schema.StatusReserved, "ann", nil},
		{"skip", schema.StatusReady, "", func(ctx context.Context, m *Memory) error { return m.Skip(ctx, 1, "ann") }, schema.StatusObsolete, "", nil},
		{"exit closed", schema.StatusCompleted, "ann", func(ctx context.Context, m *Memory) error { return m.Exit(ctx, 1, "ann") }, schema.StatusCompleted, "ann", ErrRejected},
		{"fail", schema.StatusInProgress, "ann", func(ctx context.Context, m *Memory) error { return m.Fail(ctx, 1, "ann", nil) }, schema.StatusFailed, "ann", nil},
		{"delegate", schema.StatusReserved, "ann", func(ctx context.Context, m *Memory) error { return m.Delegate(ctx, 1, "ann", "bob") }, schema.StatusReserved, "bob", nil},
		{"forward", schema.StatusInProgress, "ann", func(ctx context.Context, m *Memory) error { return m.Forward(ctx, 1, "ann", "bob") }, schema.StatusReady, "", nil},
		{"nominate one", schema.StatusCreated, "", func(ctx context.Context, m *Memory) error { return m.Nominate(ctx, 1, "admin", []string{"bob"}) }, schema.StatusReserved, "bob", nil},
		{"nominate many", schema.StatusCreated, "", func(ctx context.Context, m *Memory) error {
			return m.Nominate(ctx, 1, "admin", []string{"ann", "bob"})
		}, schema.StatusReady, "", nil},
		{"nominate ready", schema.StatusReady, "", func(ctx context.Context, m *Memory) error { return m.Nominate(ctx, 1, "admin", []string{"bob"}) }, schema.StatusReady, "", ErrRejected},
		{"missing task", schema.StatusReady, "", func(ctx context.Context, m *Memory) error { return m.Claim(ctx, 99, "ann") }, schema.StatusReady, "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory()
			m.AddTask(schema.Task{ID: 1, Name: "t", Status: tt.status, ActualOwner: tt.owner})

			err := tt.op(context.Background(), m)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}

			task, _ := m.Task(1)
			if task.Status != tt.wantStatus || task.ActualOwner != tt.wantOwner {
				t.Errorf("got %s/%q, want %s/%q", task.Status, task.ActualOwner, tt.wantStatus, tt.wantOwner)
			}
		})
	}
}

func TestMemory_SuspendResume(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddTask(schema.Task{ID: 3, Status: schema.StatusInProgress, ActualOwner: "ann"})

	if err := m.Suspend(ctx, 3, "ann"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if task, _ := m.Task(3); task.Status != schema.StatusSuspended {
		t.Fatalf("status = %s, want Suspended", task.Status)
	}
	if err := m.Resume(ctx, 3, "ann"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if task, _ := m.Task(3); task.Status != schema.StatusInProgress {
		t.Errorf("status = %s, want InProgress", task.Status)
	}
	if err := m.Resume(ctx, 3, "ann"); !errors.Is(err, ErrRejected) {
		t.Errorf("resume of running task: got %v, want rejection", err)
	}
}

func TestMemory_Listings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddTask(schema.Task{ID: 3, Status: schema.StatusReserved, ActualOwner: "ann"})
	m.AddTask(schema.Task{ID: 1, Status: schema.StatusInProgress, ActualOwner: "ann"})
	m.AddTask(schema.Task{ID: 2, Status: schema.StatusCompleted, ActualOwner: "ann"})
	m.AddTask(schema.Task{ID: 4, Status: schema.StatusReady}, "ann")
	m.AddTask(schema.Task{ID: 5, Status: schema.StatusReady}, "bob")
	m.AddTask(schema.Task{ID: 6, Status: schema.StatusCreated})

	owned, err := m.TasksOwnedByStatus(ctx, "ann", schema.OwnedStatuses, "en-US")
	if err != nil {
		t.Fatalf("TasksOwnedByStatus failed: %v", err)
	}
	if len(owned) != 2 || owned[0].ID != 1 || owned[1].ID != 3 {
		t.Errorf("owned = %+v, want ids [1 3]", owned)
	}

	potential, err := m.TasksAssignedAsPotentialOwnerByStatus(ctx, "ann", schema.ClaimableStatuses, "en-US")
	if err != nil {
		t.Fatalf("TasksAssignedAsPotentialOwnerByStatus failed: %v", err)
	}
	if len(potential) != 2 || potential[0].ID != 4 || potential[1].ID != 6 {
		t.Errorf("potential = %+v, want ids [4 6]", potential)
	}
}

func TestMemory_StartProcess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.DefineProcess("review")

	if _, err := m.StartProcess(ctx, "audit", nil); !errors.Is(err, ErrRejected) {
		t.Fatalf("unknown process: got %v, want rejection", err)
	}

	pi, err := m.StartProcess(ctx, "review", map[string]any{"actorId": "ann", "priority": 2})
	if err != nil {
		t.Fatalf("StartProcess failed: %v", err)
	}
	if pi.ID == "" || pi.ProcessName != "review" {
		t.Errorf("unexpected instance %+v", pi)
	}
	if v, _ := pi.Variables.Get("priority"); v != "2" {
		t.Errorf("priority = %q, want 2", v)
	}
	if got := len(m.Processes()); got != 1 {
		t.Errorf("Processes() = %d, want 1", got)
	}

	potential, _ := m.TasksAssignedAsPotentialOwnerByStatus(ctx, "ann", schema.ClaimableStatuses, "")
	if len(potential) != 1 || potential[0].Name != "review" {
		t.Errorf("expected a review task for ann, got %+v", potential)
	}
}

func TestMemory_FailNext(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.FailNext(OpStartProcess, ErrTimeout, 2)

	for i := 0; i < 2; i++ {
		_, err := m.StartProcess(ctx, "review", nil)
		if !errors.Is(err, ErrTimeout) || !IsRetryable(err) {
			t.Fatalf("call %d: got %v, want retryable timeout", i, err)
		}
	}
	if _, err := m.StartProcess(ctx, "review", nil); err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if got := m.Calls(OpStartProcess); got != 3 {
		t.Errorf("Calls = %d, want 3", got)
	}
	if got := len(m.Processes()); got != 1 {
		t.Errorf("Processes = %d, want 1", got)
	}
}

func TestMemory_Content(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetContent(schema.Content{ID: 7, ContentType: "text/plain", Data: []byte("hello")})

	c, err := m.ContentByID(ctx, 7)
	if err != nil {
		t.Fatalf("ContentByID failed: %v", err)
	}
	if string(c.Data) != "hello" {
		t.Errorf("Data = %q", c.Data)
	}
	if _, err := m.AttachmentByID(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("AttachmentByID: got %v, want not found", err)
	}
}
