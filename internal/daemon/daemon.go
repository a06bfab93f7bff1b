package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/termwork/tasksync/internal/reconcile"
	"github.com/termwork/tasksync/internal/schema"
	"github.com/termwork/tasksync/internal/store"
)

var (
	// ErrHalted is returned for every cycle after a datastore failure
	// until Resume is called.
	ErrHalted = errors.New("sync halted after a datastore failure")

	// ErrStopped is returned once the daemon has been stopped.
	ErrStopped = errors.New("sync daemon stopped")

	// ErrBusy is returned when another process sharing the cache is
	// running a cycle for the same user.
	ErrBusy = errors.New("another process is synchronizing this user")
)

// Config holds configuration for the daemon.
type Config struct {
	// UserID is the user Start synchronizes
	UserID string

	// Interval is how often Start runs a cycle
	Interval time.Duration

	// ClaimLimit is how many tasks each cycle claims (0 disables claiming)
	ClaimLimit int

	// Workers bounds how many cycles run at once across users
	Workers int

	// LeaseTTL bounds how long a crashed process can block a user's
	// cycles from other processes
	LeaseTTL time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Minute,
		Workers:  2,
		LeaseTTL: 15 * time.Minute,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// CycleReport collects the phase reports of one cycle. A phase that did
// not run is nil.
type CycleReport struct {
	CycleID  string                   `json:"cycle_id"`
	Started  time.Time                `json:"started"`
	Finished time.Time                `json:"finished"`
	Requests *reconcile.RequestReport `json:"requests,omitempty"`
	Actions  *reconcile.ActionReport  `json:"actions,omitempty"`
	Claim    *reconcile.ClaimReport   `json:"claim,omitempty"`
	Fetch    *reconcile.FetchReport   `json:"fetch,omitempty"`
}

// Result is delivered once per SynchronizeWithRemote call.
type Result struct {
	UserID string
	Report *CycleReport
	Err    error
	// Shared is true when the call joined a cycle another call started.
	Shared bool
}

// SyncStatus describes the cycles of one user.
type SyncStatus struct {
	Running     bool         `json:"running"`
	LastStart   time.Time    `json:"last_start"`
	LastSuccess time.Time    `json:"last_success"`
	LastError   string       `json:"last_error,omitempty"`
	LastReport  *CycleReport `json:"last_report,omitempty"`
	Cycles      int          `json:"cycles"`
}

// Daemon schedules reconciliation cycles.
type Daemon struct {
	engine   reconcile.Reconciler
	requests *store.RequestStore
	leases   *store.LeaseStore
	holder   string
	leaseTTL time.Duration
	logger   *log.Logger

	cfgMu      sync.Mutex
	userID     string
	interval   time.Duration
	claimLimit int
	reschedule chan time.Duration

	sem   *semaphore.Weighted
	group singleflight.Group

	mu      sync.Mutex
	status  map[string]*SyncStatus
	halted  error
	stopped bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon with default configuration.
func New(engine reconcile.Reconciler, requests *store.RequestStore) (*Daemon, error) {
	return NewWithConfig(engine, requests, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine reconcile.Reconciler, requests *store.RequestStore, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if requests == nil {
		return nil, fmt.Errorf("request store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = defaults.LeaseTTL
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:     engine,
		requests:   requests,
		leases:     store.NewLeaseStore(requests.DB()),
		holder:     uuid.NewString(),
		leaseTTL:   config.LeaseTTL,
		logger:     config.Logger,
		userID:     config.UserID,
		interval:   config.Interval,
		claimLimit: config.ClaimLimit,
		reschedule: make(chan time.Duration, 1),
		sem:        semaphore.NewWeighted(int64(config.Workers)),
		status:     make(map[string]*SyncStatus),
		subs:       make(map[int]chan Event),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SynchronizeWithRemote schedules a cycle for userID and returns at once.
//
// The channel receives exactly one Result and is then closed; callers that
// only want fire-and-forget may drop it. If a cycle for userID is already
// running the call joins it.
func (d *Daemon) SynchronizeWithRemote(userID string) <-chan Result {
	results := make(chan Result, 1)

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		results <- Result{UserID: userID, Err: ErrStopped}
		close(results)
		return results
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer close(results)

		v, err, shared := d.group.Do(userID, func() (any, error) {
			return d.runCycle(userID)
		})
		res := Result{UserID: userID, Err: err, Shared: shared}
		if report, ok := v.(*CycleReport); ok {
			res.Report = report
		}
		results <- res
	}()
	return results
}

// RequestProcessInstanceCreation stores req as REQUESTED and schedules a
// cycle for its user. The request is durable once this returns nil, even if
// the remote is unreachable.
func (d *Daemon) RequestProcessInstanceCreation(ctx context.Context, req *schema.ProcessInstanceCreationRequest) (<-chan Result, error) {
	if req.ID != 0 {
		return nil, fmt.Errorf("request %d was already submitted", req.ID)
	}
	if req.UserID == "" {
		req.UserID = d.UserID()
	}
	if req.Status == "" {
		req.Status = schema.RequestRequested
	}
	if req.Status != schema.RequestRequested {
		return nil, fmt.Errorf("new request must be %s, got %s", schema.RequestRequested, req.Status)
	}
	if req.RequestTime.IsZero() {
		req.RequestTime = time.Now().UTC()
	}

	if err := d.requests.Save(ctx, req); err != nil {
		return nil, err
	}
	d.logger.Printf("Recorded request %d to start %s for %s", req.ID, req.ProcessName, req.UserID)
	d.publish(Event{
		Type:      EventRequestUpdated,
		UserID:    req.UserID,
		RequestID: req.ID,
		Status:    string(req.Status),
	})

	return d.SynchronizeWithRemote(req.UserID), nil
}

// Status returns the cycle status of userID.
func (d *Daemon) Status(userID string) SyncStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.status[userID]
	if !ok {
		return SyncStatus{}
	}
	return *st
}

// Halted returns the datastore error that halted the daemon, or nil.
func (d *Daemon) Halted() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// Resume clears a halt so cycles run again.
func (d *Daemon) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted != nil {
		d.logger.Printf("Resuming after halt: %v", d.halted)
		d.halted = nil
	}
}

// UserID returns the user Start synchronizes.
func (d *Daemon) UserID() string {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.userID
}

// UpdateSchedule changes the interval and claim limit of a running daemon.
// A non-positive interval keeps the current one.
func (d *Daemon) UpdateSchedule(interval time.Duration, claimLimit int) {
	d.cfgMu.Lock()
	changed := interval > 0 && interval != d.interval
	if interval > 0 {
		d.interval = interval
	}
	d.claimLimit = claimLimit
	effective := d.interval
	d.cfgMu.Unlock()

	d.logger.Printf("Schedule updated: interval=%v claim_limit=%d", effective, claimLimit)
	if changed {
		select {
		case d.reschedule <- effective:
		default:
		}
	}
}

func (d *Daemon) schedule() (time.Duration, int) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.interval, d.claimLimit
}

// Start runs a cycle for the configured user immediately and then on every
// interval. This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	userID := d.UserID()
	if userID == "" {
		return fmt.Errorf("no user configured")
	}
	interval, _ := d.schedule()
	d.logger.Printf("Starting daemon for %s (every %v)", userID, interval)

	d.SynchronizeWithRemote(userID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Println("Shutdown signal received")
			return d.Stop()
		case <-d.ctx.Done():
			return nil
		case next := <-d.reschedule:
			ticker.Reset(next)
		case <-ticker.C:
			d.SynchronizeWithRemote(userID)
		}
	}
}

// Stop cancels running cycles and waits for them to finish. Calls after
// the first are no-ops.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	d.logger.Println("Stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.logger.Println("Daemon stopped")
	return nil
}

func (d *Daemon) runCycle(userID string) (*CycleReport, error) {
	if err := d.Halted(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHalted, err)
	}
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return nil, ErrStopped
	}
	defer d.sem.Release(1)

	report := &CycleReport{CycleID: uuid.NewString(), Started: time.Now().UTC()}
	d.markStarted(userID, report.Started)
	d.publish(Event{Type: EventCycleStarted, UserID: userID, CycleID: report.CycleID})

	err := d.cycle(d.ctx, userID, report)
	report.Finished = time.Now().UTC()
	d.markFinished(userID, report, err)

	if err != nil {
		if store.IsDatastoreError(err) && !errors.Is(err, context.Canceled) {
			d.halt(err)
			d.logger.Printf("FATAL: cycle %s for %s: %v; halting until resumed", report.CycleID, userID, err)
		} else {
			d.logger.Printf("Cycle %s for %s failed: %v", report.CycleID, userID, err)
		}
		d.publish(Event{Type: EventCycleFailed, UserID: userID, CycleID: report.CycleID, Report: report, Error: err.Error()})
		return report, err
	}

	d.logger.Printf("Cycle %s for %s complete in %v", report.CycleID, userID, report.Finished.Sub(report.Started))
	d.publish(Event{Type: EventCycleComplete, UserID: userID, CycleID: report.CycleID, Report: report})
	return report, nil
}

// cycle runs the phases in order and stops at the first failure. The
// user's lease is held for the whole cycle.
func (d *Daemon) cycle(ctx context.Context, userID string, report *CycleReport) error {
	held, err := d.leases.Acquire(ctx, userID, d.holder, d.leaseTTL)
	if err != nil {
		return fmt.Errorf("lease: %w", err)
	}
	if !held {
		return ErrBusy
	}
	defer func() {
		if err := d.leases.Release(context.WithoutCancel(ctx), userID, d.holder); err != nil {
			d.logger.Printf("Failed to release lease for %s: %v", userID, err)
		}
	}()

	requests, err := d.engine.FulfillRequests(ctx)
	report.Requests = requests
	if requests != nil {
		for _, req := range requests.Updated {
			d.publish(Event{
				Type:      EventRequestUpdated,
				UserID:    req.UserID,
				CycleID:   report.CycleID,
				RequestID: req.ID,
				Status:    string(req.Status),
				Message:   req.SyncMessage,
			})
		}
	}
	if err != nil {
		return fmt.Errorf("process requests: %w", err)
	}

	actions, err := d.engine.PushActions(ctx, userID)
	report.Actions = actions
	if actions != nil {
		for _, id := range actions.Updated {
			d.publish(Event{Type: EventTaskUpdated, UserID: userID, CycleID: report.CycleID, TaskID: id})
		}
	}
	if err != nil {
		return fmt.Errorf("task actions: %w", err)
	}

	if _, limit := d.schedule(); limit > 0 {
		claim, err := d.engine.ClaimBatch(ctx, userID, limit)
		report.Claim = claim
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
	}

	fetch, err := d.engine.FetchTasks(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	report.Fetch = fetch
	for _, task := range fetch.Changed {
		d.publish(Event{
			Type:    EventTaskUpdated,
			UserID:  userID,
			CycleID: report.CycleID,
			TaskID:  task.ID,
			Status:  task.Status,
		})
	}
	return nil
}

func (d *Daemon) markStarted(userID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.status[userID]
	if !ok {
		st = &SyncStatus{}
		d.status[userID] = st
	}
	st.Running = true
	st.LastStart = at
}

func (d *Daemon) markFinished(userID string, report *CycleReport, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status[userID]
	st.Running = false
	st.Cycles++
	st.LastReport = report
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastSuccess = report.Finished
}

func (d *Daemon) halt(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.halted = err
}
