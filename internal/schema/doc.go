// Package schema defines the records cached locally by the task sync engine.
//
// # Overview
//
// Two record types are persisted:
//
//   - LocalTask mirrors one work item owned by the remote workflow server.
//     Its id is assigned remotely; records are never deleted, only moved
//     between statuses, so the local table doubles as an audit history.
//   - ProcessInstanceCreationRequest records local intent to start a
//     remote process instance. It is written before any network call and
//     moves REQUESTED -> CREATED or REQUESTED -> REJECTED exactly once.
//
// TaskSummary, Task and ProcessInstance are values returned by the remote
// gateway. They are compared against local records but never stored as-is.
//
// # Task Statuses
//
// Statuses use the remote vocabulary:
//
//	Created, Ready, Reserved, InProgress, Suspended,
//	Completed, Failed, Error, Exited, Obsolete
//
// The last five are closed; everything else counts as open.
//
// # Variables
//
// Task input and output variables keep their insertion order and are
// stored as a JSON array of {"key","value"} pairs:
//
//	[{"key":"componentId","value":"1234"},{"key":"comment","value":"ok"}]
package schema
