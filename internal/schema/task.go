package schema

import (
	"fmt"
	"time"
)

// Task statuses as reported by the remote workflow server.
const (
	StatusCreated    = "Created"
	StatusReady      = "Ready"
	StatusReserved   = "Reserved"
	StatusInProgress = "InProgress"
	StatusSuspended  = "Suspended"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
	StatusError      = "Error"
	StatusExited     = "Exited"
	StatusObsolete   = "Obsolete"
)

// Local action states for an action queued against a task.
const (
	ActionPending = "PENDING"
	ActionDone    = "DONE"
	ActionFailed  = "FAILED"
)

var closedStatuses = map[string]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusError:     true,
	StatusExited:    true,
	StatusObsolete:  true,
}

var knownStatuses = map[string]bool{
	StatusCreated:    true,
	StatusReady:      true,
	StatusReserved:   true,
	StatusInProgress: true,
	StatusSuspended:  true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusError:      true,
	StatusExited:     true,
	StatusObsolete:   true,
}

// OwnedStatuses is the status filter used when pulling a user's working set.
var OwnedStatuses = []string{StatusReserved, StatusInProgress}

// ClaimableStatuses is the status filter used when looking for work to claim.
var ClaimableStatuses = []string{StatusReady, StatusCreated}

// IsOpenStatus reports whether a task in this status is still workable.
// Unknown statuses count as open so they are re-checked against the remote.
func IsOpenStatus(status string) bool {
	return !closedStatuses[status]
}

// OpenStatuses lists every known status that IsOpenStatus accepts.
func OpenStatuses() []string {
	return []string{StatusCreated, StatusReady, StatusReserved, StatusInProgress, StatusSuspended}
}

// IsKnownStatus reports whether status belongs to the remote vocabulary.
func IsKnownStatus(status string) bool {
	return knownStatuses[status]
}

// LocalTask is the cached mirror of one remote work item.
type LocalTask struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ComponentID   string `json:"component_id,omitempty"`
	ComponentName string `json:"component_name,omitempty"`
	Status        string `json:"status"`
	Owner         string `json:"owner,omitempty"`

	// Action, ActionUser and ActionStatus are local-only: an action queued
	// by ActionUser that has not been pushed yet, and how the last push went.
	Action       string `json:"action,omitempty"`
	ActionUser   string `json:"action_user,omitempty"`
	ActionStatus string `json:"action_status,omitempty"`

	InputVariables  Variables `json:"input_variables,omitempty"`
	OutputVariables Variables `json:"output_variables,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the LocalTask has valid field values.
func (t *LocalTask) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", t.ID)
	}
	if t.Status == "" {
		return fmt.Errorf("status is required")
	}
	if len(t.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(t.Name))
	}
	return nil
}

// IsOpen reports whether the task status is still workable.
func (t *LocalTask) IsOpen() bool {
	return IsOpenStatus(t.Status)
}

// HasPendingAction reports whether a queued action still needs pushing.
func (t *LocalTask) HasPendingAction() bool {
	return t.Action != "" && t.ActionStatus == ActionPending
}

// ActionQueuedBy reports whether userID is the one to push the queued
// action. Actions recorded without a user belong to the task owner.
func (t *LocalTask) ActionQueuedBy(userID string) bool {
	if t.ActionUser != "" {
		return t.ActionUser == userID
	}
	return t.Owner != "" && t.Owner == userID
}

// Clone returns a deep copy.
func (t *LocalTask) Clone() *LocalTask {
	c := *t
	c.InputVariables = t.InputVariables.Clone()
	c.OutputVariables = t.OutputVariables.Clone()
	return &c
}

// NewLocalTask creates the first local record for a task seen in a pull.
func NewLocalTask(s TaskSummary) *LocalTask {
	return &LocalTask{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		Owner:     s.ActualOwner,
		UpdatedAt: time.Now().UTC(),
	}
}

// MergeSummary overwrites owner and status from a remote summary.
// It returns true when anything changed.
func (t *LocalTask) MergeSummary(s TaskSummary) bool {
	if t.Owner == s.ActualOwner && t.Status == s.Status {
		return false
	}
	t.Owner = s.ActualOwner
	t.Status = s.Status
	t.UpdatedAt = time.Now().UTC()
	return true
}

// Variable keys carrying the terminology component a task concerns.
const (
	VarComponentID   = "componentId"
	VarComponentName = "componentName"
)

// MergeDetail overwrites the remote-owned fields from full task detail.
// Local-only fields (Action, ActionStatus) are kept. It returns true when
// anything changed.
func (t *LocalTask) MergeDetail(d *Task) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	if d.Name != "" {
		set(&t.Name, d.Name)
	}
	set(&t.Status, d.Status)
	set(&t.Owner, d.ActualOwner)
	if v, ok := d.InputVariables.Get(VarComponentID); ok {
		set(&t.ComponentID, v)
	}
	if v, ok := d.InputVariables.Get(VarComponentName); ok {
		set(&t.ComponentName, v)
	}
	if !t.InputVariables.Equal(d.InputVariables) {
		t.InputVariables = d.InputVariables.Clone()
		changed = true
	}
	if !t.OutputVariables.Equal(d.OutputVariables) {
		t.OutputVariables = d.OutputVariables.Clone()
		changed = true
	}

	if changed {
		t.UpdatedAt = time.Now().UTC()
	}
	return changed
}
