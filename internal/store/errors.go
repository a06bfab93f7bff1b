package store

import (
	"errors"
	"fmt"
)

// Common errors returned by store operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, store.ErrNotFound) {
//	    // first sighting of this task
//	}
var (
	// ErrNotFound is returned when a record with the given id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTerminalRequest is returned when a save would move a process
	// request out of CREATED or REJECTED.
	ErrTerminalRequest = errors.New("process request already in a terminal state")

	// ErrClosed is returned when the database has been closed.
	ErrClosed = errors.New("database closed")
)

// DatastoreError reports a failure of the underlying storage engine.
// Errors of this type mean local persistence can no longer be trusted.
type DatastoreError struct {
	Op  string
	Err error
}

func (e *DatastoreError) Error() string {
	return fmt.Sprintf("datastore %s: %v", e.Op, e.Err)
}

func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// IsDatastoreError reports whether err (or anything it wraps) is a
// DatastoreError.
func IsDatastoreError(err error) bool {
	var de *DatastoreError
	return errors.As(err, &de)
}

func dsErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatastoreError{Op: op, Err: err}
}
