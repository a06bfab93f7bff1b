package schema

import (
	"fmt"
	"time"
)

// RequestStatus is the lifecycle state of a ProcessInstanceCreationRequest.
type RequestStatus string

const (
	// RequestRequested is the initial state, set before any network call.
	RequestRequested RequestStatus = "REQUESTED"
	// RequestRejected means the remote refused the request. Final.
	RequestRejected RequestStatus = "REJECTED"
	// RequestCreated means the remote started the process. Final.
	RequestCreated RequestStatus = "CREATED"
)

// IsValid reports whether s is one of the three known states.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestRequested, RequestRejected, RequestCreated:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may happen.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCreated || s == RequestRejected
}

// ProcessInstanceCreationRequest records local intent to start a remote
// process instance.
type ProcessInstanceCreationRequest struct {
	ID            int64          `json:"id"`
	ProcessName   string         `json:"process_name"`
	Params        map[string]any `json:"params,omitempty"`
	Variables     Variables      `json:"variables,omitempty"`
	UserID        string         `json:"user_id"`
	ComponentID   string         `json:"component_id,omitempty"`
	ComponentName string         `json:"component_name,omitempty"`
	RequestTime   time.Time      `json:"request_time"`
	SyncTime      *time.Time     `json:"sync_time,omitempty"`
	WfID          string         `json:"wf_id,omitempty"`
	Status        RequestStatus  `json:"status"`
	SyncMessage   string         `json:"sync_message,omitempty"`
}

// NewRequest creates a REQUESTED request stamped with the current time.
func NewRequest(processName, userID string, params map[string]any) *ProcessInstanceCreationRequest {
	if params == nil {
		params = map[string]any{}
	}
	return &ProcessInstanceCreationRequest{
		ProcessName: processName,
		Params:      params,
		UserID:      userID,
		RequestTime: time.Now().UTC(),
		Status:      RequestRequested,
	}
}

// Validate checks if the request has valid field values.
func (r *ProcessInstanceCreationRequest) Validate() error {
	if r.ProcessName == "" {
		return fmt.Errorf("process name is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Status == RequestCreated && r.WfID == "" {
		return fmt.Errorf("created request must carry a workflow id")
	}
	if r.RequestTime.IsZero() {
		return fmt.Errorf("request time is required")
	}
	return nil
}

// IsTerminal reports whether the request reached CREATED or REJECTED.
func (r *ProcessInstanceCreationRequest) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// MarkCreated records a successful remote start.
func (r *ProcessInstanceCreationRequest) MarkCreated(pi *ProcessInstance, at time.Time) {
	r.Status = RequestCreated
	r.WfID = pi.ID
	r.Variables = pi.Variables.Clone()
	r.SyncTime = &at
	r.SyncMessage = ""
}

// MarkRejected records a non-retriable remote refusal.
func (r *ProcessInstanceCreationRequest) MarkRejected(reason string, at time.Time) {
	r.Status = RequestRejected
	r.SyncTime = &at
	r.SyncMessage = reason
}

// MarkDeferred records a transient failure; the request stays REQUESTED.
func (r *ProcessInstanceCreationRequest) MarkDeferred(reason string, at time.Time) {
	r.SyncTime = &at
	r.SyncMessage = reason
}

// IsStale reports whether a request is still pending more than age after
// it was made.
func (r *ProcessInstanceCreationRequest) IsStale(now time.Time, age time.Duration) bool {
	if r.IsTerminal() {
		return false
	}
	return now.Sub(r.RequestTime) > age
}
