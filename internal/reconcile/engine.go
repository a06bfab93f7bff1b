package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

// Options configures an engine.
type Options struct {
	// Locale is passed to the remote list verbs (e.g. "en-US").
	Locale string
	// Logger defaults to a stderr logger prefixed "[sync] ".
	Logger *log.Logger
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// engine implements Reconciler.
type engine struct {
	gw       gateway.Gateway
	tasks    *store.TaskStore
	requests *store.RequestStore
	locale   string
	logger   *log.Logger
	now      func() time.Time
}

// New creates a Reconciler.
//
// The stores must share a database whose schema has been created. gw
// should already carry a per-call timeout (see gateway.WithTimeout).
//
// Example:
//
//	database, err := store.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	if err := database.CreateSchema(ctx); err != nil {
//	    return err
//	}
//	r := reconcile.New(
//	    gateway.WithTimeout(client, 30*time.Second),
//	    store.NewTaskStore(database),
//	    store.NewRequestStore(database),
//	    reconcile.Options{Locale: "en-US"},
//	)
func New(gw gateway.Gateway, tasks *store.TaskStore, requests *store.RequestStore, opts Options) Reconciler {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &engine{
		gw:       gw,
		tasks:    tasks,
		requests: requests,
		locale:   opts.Locale,
		logger:   opts.Logger,
		now:      func() time.Time { return opts.Now().UTC() },
	}
}

// FetchTasks implements Reconciler.FetchTasks.
func (e *engine) FetchTasks(ctx context.Context, userID string) (*FetchReport, error) {
	remote, err := e.gw.TasksOwnedByStatus(ctx, userID, schema.OwnedStatuses, e.locale)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks owned by %s: %w", userID, err)
	}

	report := &FetchReport{Remote: len(remote)}
	batch := e.tasks.NewBatch()
	listed := make(map[int64]bool, len(remote))

	for _, summary := range remote {
		listed[summary.ID] = true

		local, err := e.tasks.GetByID(ctx, summary.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			local = schema.NewLocalTask(summary)
			if err := batch.SaveRemote(local); err != nil {
				e.logger.Printf("Skipping task %d: %v", summary.ID, err)
				report.Skipped++
				continue
			}
			report.Created++
		case err != nil:
			return nil, err
		case local.MergeSummary(summary):
			if err := batch.SaveRemote(local); err != nil {
				e.logger.Printf("Skipping task %d: %v", summary.ID, err)
				report.Skipped++
				continue
			}
			report.Updated++
		default:
			report.Unchanged++
			continue
		}
		report.Changed = append(report.Changed, local)
	}

	open, err := e.tasks.GetOpenOwnedTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, local := range open {
		if listed[local.ID] {
			continue
		}

		detail, err := e.gw.TaskByID(ctx, local.ID)
		if err != nil {
			if gateway.IsRejection(err) {
				e.logger.Printf("Skipping task %d: %v", local.ID, err)
				report.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to fetch task %d: %w", local.ID, err)
		}

		if !local.MergeDetail(detail) {
			report.Unchanged++
			continue
		}
		if err := batch.SaveRemote(local); err != nil {
			e.logger.Printf("Skipping task %d: %v", local.ID, err)
			report.Skipped++
			continue
		}
		report.Recovered++
		report.Changed = append(report.Changed, local)
	}

	report.Writes = batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	e.logger.Printf("Fetched tasks for %s: %d listed, %d created, %d updated, %d recovered, %d skipped",
		userID, report.Remote, report.Created, report.Updated, report.Recovered, report.Skipped)
	return report, nil
}

// ClaimBatch implements Reconciler.ClaimBatch.
func (e *engine) ClaimBatch(ctx context.Context, userID string, limit int) (*ClaimReport, error) {
	report := &ClaimReport{}
	if limit <= 0 {
		return report, nil
	}

	candidates, err := e.gw.TasksAssignedAsPotentialOwnerByStatus(ctx, userID, schema.ClaimableStatuses, e.locale)
	if err != nil {
		return report, fmt.Errorf("failed to list claimable tasks for %s: %w", userID, err)
	}
	report.Candidates = len(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for _, c := range candidates {
		if err := e.gw.Claim(ctx, c.ID, userID); err != nil {
			if gateway.IsRejection(err) {
				e.logger.Printf("Claim of task %d rejected: %v", c.ID, err)
				report.Failed++
				continue
			}
			return report, fmt.Errorf("failed to claim task %d: %w", c.ID, err)
		}
		report.Claimed = append(report.Claimed, c.ID)
	}

	e.logger.Printf("Claimed %d of %d candidate tasks for %s", len(report.Claimed), report.Candidates, userID)
	return report, nil
}
