// Package loadtest drives many users' synchronization cycles against a
// memory remote while readers query the local cache, and reports latency.
//
// It checks that the writer lock and batched commits keep the cache
// consistent and that readers are not starved while cycles commit.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/termwork/tasksync/internal/daemon"
	"github.com/termwork/tasksync/internal/gateway"
	"github.com/termwork/tasksync/internal/reconcile"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

// Config sizes a load test.
type Config struct {
	// Users is the number of distinct users synchronized
	Users int
	// TasksPerUser is how many Reserved tasks each user owns remotely
	TasksPerUser int
	// Workers bounds concurrent cycles
	Workers int
	// Latency is added to every remote call
	Latency time.Duration
}

// DefaultConfig returns a small but concurrent setup.
func DefaultConfig() Config {
	return Config{Users: 10, TasksPerUser: 50, Workers: 4}
}

// Env is a populated database wired to a memory remote.
type Env struct {
	DB       *store.DB
	Tasks    *store.TaskStore
	Requests *store.RequestStore
	Remote   *gateway.Memory
	Daemon   *daemon.Daemon
	Users    []string
	Config   Config
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// NewEnv opens a database at dbPath and seeds the remote with
// cfg.Users × cfg.TasksPerUser owned tasks.
func NewEnv(dbPath string, cfg Config) (*Env, error) {
	if cfg.Users <= 0 || cfg.TasksPerUser < 0 {
		return nil, fmt.Errorf("invalid load test config: %+v", cfg)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.CreateSchema(context.Background()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	env := &Env{
		DB:       database,
		Tasks:    store.NewTaskStore(database),
		Requests: store.NewRequestStore(database),
		Remote:   gateway.NewMemory(),
		Config:   cfg,
	}
	env.Remote.SetLatency(cfg.Latency)

	base := time.Now().Add(-24 * time.Hour).UTC()
	for u := 0; u < cfg.Users; u++ {
		user := fmt.Sprintf("user-%03d", u)
		env.Users = append(env.Users, user)
		for i := 0; i < cfg.TasksPerUser; i++ {
			status := schema.StatusReserved
			if i%3 == 0 {
				status = schema.StatusInProgress
			}
			env.Remote.AddTask(schema.Task{
				Name:        fmt.Sprintf("%s task %d", user, i),
				Status:      status,
				ActualOwner: user,
				InputVariables: schema.Variables{
					{Key: schema.VarComponentID, Value: fmt.Sprintf("c-%d", i%7)},
				},
				CreatedOn: base.Add(time.Duration(i) * time.Minute),
			})
		}
	}

	quiet := log.New(io.Discard, "", 0)
	engine := reconcile.New(env.Remote, env.Tasks, env.Requests, reconcile.Options{
		Locale: "en-US",
		Logger: quiet,
	})
	env.Daemon, err = daemon.NewWithConfig(engine, env.Requests, &daemon.Config{
		Interval: time.Hour,
		Workers:  cfg.Workers,
		Logger:   quiet,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return env, nil
}

// Close stops the daemon and closes the database.
func (e *Env) Close() error {
	if e.Daemon != nil {
		_ = e.Daemon.Stop()
	}
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}

// RunCycles runs rounds synchronization cycles for every user, all users
// at once, and returns per-cycle latency.
func (e *Env) RunCycles(rounds int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var durations []time.Duration
	var errs []error

	for _, user := range e.Users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				start := time.Now()
				res := <-e.Daemon.SynchronizeWithRemote(user)
				elapsed := time.Since(start)

				mu.Lock()
				durations = append(durations, elapsed)
				if res.Err != nil {
					errs = append(errs, fmt.Errorf("%s round %d: %w", user, r, res.Err))
				}
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, fmt.Errorf("no cycles completed")
	}
	stats := computeLatencyStats(durations)
	stats.Errors = len(errs)
	if len(errs) > 0 {
		return stats, errs[0]
	}
	return stats, nil
}

// RunReaders simulates numReaders clients listing their open tasks while
// anything else is running, queriesPerReader times each.
func (e *Env) RunReaders(ctx context.Context, numReaders, queriesPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			user := e.Users[reader%len(e.Users)]
			durations := make([]time.Duration, 0, queriesPerReader)
			for j := 0; j < queriesPerReader; j++ {
				start := time.Now()
				_, err := e.Tasks.GetOpenOwnedTasks(ctx, user)
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", reader, j, err)
					return
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var all []time.Duration
	for d := range resultsChan {
		all = append(all, d...)
	}
	var firstErr error
	errorCount := 0
	for err := range errorsChan {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}
	if len(all) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	return stats, firstErr
}

// VerifyConsistency checks that every user's cached open tasks match what
// the remote says they own.
func (e *Env) VerifyConsistency(ctx context.Context) error {
	for _, user := range e.Users {
		remote, err := e.Remote.TasksOwnedByStatus(ctx, user, schema.OwnedStatuses, "en-US")
		if err != nil {
			return fmt.Errorf("listing remote tasks for %s: %w", user, err)
		}
		local, err := e.Tasks.GetOpenOwnedTasks(ctx, user)
		if err != nil {
			return fmt.Errorf("listing local tasks for %s: %w", user, err)
		}
		if len(local) != len(remote) {
			return fmt.Errorf("%s: %d local open tasks, remote owns %d", user, len(local), len(remote))
		}
		byID := make(map[int64]string, len(remote))
		for _, s := range remote {
			byID[s.ID] = s.Status
		}
		for _, t := range local {
			status, ok := byID[t.ID]
			if !ok {
				return fmt.Errorf("%s: local task %d not owned remotely", user, t.ID)
			}
			if status != t.Status {
				return fmt.Errorf("%s: task %d is %s locally, %s remotely", user, t.ID, t.Status, status)
			}
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats latency statistics under a title.
func (s *LatencyStats) PrintStats(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
	fmt.Fprintf(w, "  Total:         %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
