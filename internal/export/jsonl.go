// Package export writes the local cache as a JSONL audit trail.
//
// Each line is one record with a kind discriminator:
//
//	{"kind":"task","task":{"id":16,"status":"Reserved",...}}
//	{"kind":"request","request":{"id":3,"process_name":"review",...}}
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

// Record kinds.
const (
	KindTask    = "task"
	KindRequest = "request"
)

// Record is one JSONL line.
type Record struct {
	Kind    string                                 `json:"kind"`
	Task    *schema.LocalTask                      `json:"task,omitempty"`
	Request *schema.ProcessInstanceCreationRequest `json:"request,omitempty"`
}

// Snapshot is the parsed content of an export.
type Snapshot struct {
	Tasks    []*schema.LocalTask
	Requests []*schema.ProcessInstanceCreationRequest
}

// Options filters what Export writes.
type Options struct {
	// Owner restricts tasks and requests to one user (empty = all)
	Owner string
	// SkipRequests leaves process requests out
	SkipRequests bool
}

// Result contains statistics about an export
type Result struct {
	Tasks    int
	Requests int
}

// WriteJSONL writes tasks then requests, one record per line.
func WriteJSONL(w io.Writer, tasks []*schema.LocalTask, requests []*schema.ProcessInstanceCreationRequest) error {
	enc := json.NewEncoder(w)
	for _, t := range tasks {
		if err := enc.Encode(Record{Kind: KindTask, Task: t}); err != nil {
			return fmt.Errorf("failed to write task %d: %w", t.ID, err)
		}
	}
	for _, r := range requests {
		if err := enc.Encode(Record{Kind: KindRequest, Request: r}); err != nil {
			return fmt.Errorf("failed to write request %d: %w", r.ID, err)
		}
	}
	return nil
}

// ReadJSONL parses an export. Blank lines are ignored.
func ReadJSONL(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch rec.Kind {
		case KindTask:
			if rec.Task == nil {
				return nil, fmt.Errorf("line %d: task record without task", lineNum)
			}
			snap.Tasks = append(snap.Tasks, rec.Task)
		case KindRequest:
			if rec.Request == nil {
				return nil, fmt.Errorf("line %d: request record without request", lineNum)
			}
			snap.Requests = append(snap.Requests, rec.Request)
		default:
			return nil, fmt.Errorf("line %d: unknown record kind %q", lineNum, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return snap, nil
}

// Export reads both stores and writes them to w.
func Export(ctx context.Context, tasks *store.TaskStore, requests *store.RequestStore, w io.Writer, opts Options) (*Result, error) {
	taskList, err := tasks.ListTasks(ctx, store.TaskFilter{Owner: opts.Owner})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var reqList []*schema.ProcessInstanceCreationRequest
	if !opts.SkipRequests {
		reqList, err = requests.ListRequests(ctx, store.RequestFilter{UserID: opts.Owner})
		if err != nil {
			return nil, fmt.Errorf("failed to list requests: %w", err)
		}
	}

	if err := WriteJSONL(w, taskList, reqList); err != nil {
		return nil, err
	}
	return &Result{Tasks: len(taskList), Requests: len(reqList)}, nil
}

// ExportFile writes an export atomically: to a temp file in the same
// directory, then renamed over path.
func ExportFile(ctx context.Context, tasks *store.TaskStore, requests *store.RequestStore, path string, opts Options) (*Result, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	result, err := Export(ctx, tasks, requests, w, opts)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to move export into place: %w", err)
	}
	return result, nil
}
