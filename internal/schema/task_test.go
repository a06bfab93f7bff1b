package schema

import (
	"strings"
	"testing"
)

func TestLocalTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    LocalTask
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid task",
			task:    LocalTask{ID: 16, Name: "Review concept", Status: StatusReserved, Owner: "alejandro"},
			wantErr: false,
		},
		{
			name:    "zero id",
			task:    LocalTask{Status: StatusReady},
			wantErr: true,
			errMsg:  "id must be positive",
		},
		{
			name:    "missing status",
			task:    LocalTask{ID: 3},
			wantErr: true,
			errMsg:  "status is required",
		},
		{
			name:    "name too long",
			task:    LocalTask{ID: 3, Status: StatusReady, Name: strings.Repeat("x", 501)},
			wantErr: true,
			errMsg:  "name must be 500 characters or less",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestIsOpenStatus(t *testing.T) {
	for _, s := range OpenStatuses() {
		if !IsOpenStatus(s) {
			t.Errorf("IsOpenStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{StatusCompleted, StatusFailed, StatusError, StatusExited, StatusObsolete} {
		if IsOpenStatus(s) {
			t.Errorf("IsOpenStatus(%q) = true, want false", s)
		}
	}
	if !IsOpenStatus("SomethingNew") {
		t.Error("unknown statuses should count as open")
	}
}

func TestLocalTask_ActionQueuedBy(t *testing.T) {
	tests := []struct {
		name string
		task LocalTask
		user string
		want bool
	}{
		{"queuing user", LocalTask{Owner: "maria", ActionUser: "alejandro"}, "alejandro", true},
		{"owner did not queue it", LocalTask{Owner: "maria", ActionUser: "alejandro"}, "maria", false},
		{"unowned, other user", LocalTask{ActionUser: "alejandro"}, "maria", false},
		{"no queuing user falls back to owner", LocalTask{Owner: "maria"}, "maria", true},
		{"no queuing user and no owner", LocalTask{}, "maria", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.ActionQueuedBy(tt.user); got != tt.want {
				t.Errorf("ActionQueuedBy(%q) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestLocalTask_MergeSummary(t *testing.T) {
	task := NewLocalTask(TaskSummary{ID: 16, Name: "Review", Status: StatusReserved, ActualOwner: "alejandro"})

	if task.MergeSummary(TaskSummary{ID: 16, Status: StatusReserved, ActualOwner: "alejandro"}) {
		t.Error("MergeSummary() reported a change for an identical summary")
	}

	if !task.MergeSummary(TaskSummary{ID: 16, Status: StatusInProgress, ActualOwner: "alejandro"}) {
		t.Fatal("MergeSummary() missed a status change")
	}
	if task.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", task.Status, StatusInProgress)
	}

	if !task.MergeSummary(TaskSummary{ID: 16, Status: StatusInProgress, ActualOwner: "maria"}) {
		t.Fatal("MergeSummary() missed an owner change")
	}
	if task.Owner != "maria" {
		t.Errorf("Owner = %q, want %q", task.Owner, "maria")
	}
}

func TestLocalTask_MergeDetail(t *testing.T) {
	task := &LocalTask{
		ID:           16,
		Name:         "Review",
		Status:       StatusInProgress,
		Owner:        "alejandro",
		Action:       "complete",
		ActionStatus: ActionPending,
	}

	detail := &Task{
		ID:          16,
		Name:        "Review",
		Status:      StatusCompleted,
		ActualOwner: "alejandro",
		InputVariables: Variables{
			{Key: VarComponentID, Value: "22298006"},
			{Key: VarComponentName, Value: "Myocardial infarction"},
		},
	}

	if !task.MergeDetail(detail) {
		t.Fatal("MergeDetail() reported no change")
	}
	if task.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", task.Status, StatusCompleted)
	}
	if task.ComponentID != "22298006" || task.ComponentName != "Myocardial infarction" {
		t.Errorf("component = %q/%q, want values from input variables", task.ComponentID, task.ComponentName)
	}
	if task.Action != "complete" || task.ActionStatus != ActionPending {
		t.Error("MergeDetail() must keep local-only action fields")
	}

	if task.MergeDetail(detail) {
		t.Error("second MergeDetail() with the same detail reported a change")
	}
}

func TestLocalTask_Clone(t *testing.T) {
	orig := &LocalTask{ID: 1, Status: StatusReady, InputVariables: Variables{{Key: "a", Value: "1"}}}
	c := orig.Clone()
	c.InputVariables[0].Value = "2"
	if v, _ := orig.InputVariables.Get("a"); v != "1" {
		t.Errorf("Clone() shares variables with the original")
	}
}
