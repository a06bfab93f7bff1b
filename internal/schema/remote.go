package schema

import "time"

// TaskSummary is the remote list view of a task. It is only used to
// compare against local records during reconciliation.
type TaskSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	ActualOwner string `json:"actual_owner,omitempty"`
}

// Task is the full remote detail of one task.
type Task struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Status            string    `json:"status"`
	ActualOwner       string    `json:"actual_owner,omitempty"`
	ProcessInstanceID string    `json:"process_instance_id,omitempty"`
	InputVariables    Variables `json:"input_variables,omitempty"`
	OutputVariables   Variables `json:"output_variables,omitempty"`
	CreatedOn         time.Time `json:"created_on"`
}

// Summary returns the list view of the task.
func (t *Task) Summary() TaskSummary {
	return TaskSummary{ID: t.ID, Name: t.Name, Status: t.Status, ActualOwner: t.ActualOwner}
}

// ProcessInstance is the handle returned when the remote starts a process.
type ProcessInstance struct {
	ID          string    `json:"id"`
	ProcessName string    `json:"process_name"`
	Variables   Variables `json:"variables,omitempty"`
}

// Content is a task content or attachment blob.
type Content struct {
	ID          int64  `json:"id"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}
