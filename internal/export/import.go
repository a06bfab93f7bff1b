package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/termwork/tasksync/internal/store"
)

// ImportOptions configures Import.
type ImportOptions struct {
	// DryRun parses and counts without writing
	DryRun bool
	// KeepExisting leaves tasks already in the cache alone instead of
	// overwriting them with the exported copy
	KeepExisting bool
}

// ImportResult contains statistics about an import
type ImportResult struct {
	TasksImported    int
	TasksSkipped     int
	RequestsImported int
	RequestsSkipped  int
}

// Import restores an export into the stores.
//
// Tasks are written in one batch, so either all of them land or none do.
// Requests are restored one by one and never replace a stored request,
// which keeps CREATED and REJECTED records final.
func Import(ctx context.Context, tasks *store.TaskStore, requests *store.RequestStore, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	snap, err := ReadJSONL(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	batch := tasks.NewBatch()
	for _, t := range snap.Tasks {
		if opts.KeepExisting {
			_, err := tasks.GetByID(ctx, t.ID)
			if err == nil {
				result.TasksSkipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("checking task %d: %w", t.ID, err)
			}
		}
		if err := batch.Save(t); err != nil {
			return nil, fmt.Errorf("task %d: %w", t.ID, err)
		}
		result.TasksImported++
	}

	if opts.DryRun {
		result.RequestsImported = len(snap.Requests)
		return result, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to write tasks: %w", err)
	}

	for _, req := range snap.Requests {
		inserted, err := requests.Restore(ctx, req)
		if err != nil {
			return result, fmt.Errorf("request %d: %w", req.ID, err)
		}
		if inserted {
			result.RequestsImported++
		} else {
			result.RequestsSkipped++
		}
	}
	return result, nil
}

// ImportFile imports the export at path.
func ImportFile(ctx context.Context, tasks *store.TaskStore, requests *store.RequestStore, path string, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	return Import(ctx, tasks, requests, f, opts)
}
