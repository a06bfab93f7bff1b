package gateway

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termwork/tasksync/internal/schema"
)

// Memory is an in-process Gateway holding tasks, contents and started
// process instances. Task transitions follow the usual human-task rules:
// a task is claimed out of Ready, started once reserved, completed while
// in progress.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	tasks       map[int64]*memTask
	contents    map[int64]*schema.Content
	attachments map[int64]*schema.Content
	processes   []schema.ProcessInstance
	definitions map[string]bool
	faults      map[string][]error
	calls       map[string]int
	latency     time.Duration
	nextID      int64
}

type memTask struct {
	task          schema.Task
	potential     []string
	suspendedFrom string
}

// NewMemory creates an empty in-memory remote.
func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[int64]*memTask),
		contents:    make(map[int64]*schema.Content),
		attachments: make(map[int64]*schema.Content),
		definitions: make(map[string]bool),
		faults:      make(map[string][]error),
		calls:       make(map[string]int),
		nextID:      1,
	}
}

// AddTask stores a task. potentialOwners lists the users allowed to claim
// it; none means anyone may.
func (m *Memory) AddTask(task schema.Task, potentialOwners ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == 0 {
		task.ID = m.nextID
	}
	if task.ID >= m.nextID {
		m.nextID = task.ID + 1
	}
	if task.CreatedOn.IsZero() {
		task.CreatedOn = time.Now().UTC()
	}
	task.InputVariables = task.InputVariables.Clone()
	task.OutputVariables = task.OutputVariables.Clone()
	m.tasks[task.ID] = &memTask{task: task, potential: slices.Clone(potentialOwners)}
}

// SetTaskState overwrites status and owner of an existing task, as if
// another client had acted on it.
func (m *Memory) SetTaskState(id int64, status, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.task.Status = status
		t.task.ActualOwner = owner
	}
}

// Task returns a copy of a stored task.
func (m *Memory) Task(id int64) (schema.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return schema.Task{}, false
	}
	return copyTask(t.task), true
}

// SetContent stores a content blob returned by ContentByID.
func (m *Memory) SetContent(c schema.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[c.ID] = &c
}

// SetAttachment stores a blob returned by AttachmentByID.
func (m *Memory) SetAttachment(c schema.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[c.ID] = &c
}

// DefineProcess registers process names StartProcess accepts. While no
// process is defined every name is accepted.
func (m *Memory) DefineProcess(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.definitions[n] = true
	}
}

// Processes returns the process instances started so far.
func (m *Memory) Processes() []schema.ProcessInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.processes)
}

// FailNext makes the next n calls of op fail with err before touching any
// state. Calls are still counted.
func (m *Memory) FailNext(op string, err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.faults[op] = append(m.faults[op], err)
	}
}

// SetLatency delays every call by d, or until the call's context is done.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter counts the call, applies latency and pops an injected fault.
func (m *Memory) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	latency := m.latency
	var fault error
	if q := m.faults[op]; len(q) > 0 {
		fault = q[0]
		m.faults[op] = q[1:]
	}
	m.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return classify(op, ctx.Err())
		case <-timer.C:
		}
	}
	if fault != nil {
		return classify(op, fault)
	}
	if err := ctx.Err(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (m *Memory) TaskByID(ctx context.Context, id int64) (*schema.Task, error) {
	if err := m.enter(ctx, OpTaskByID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, Errorf(OpTaskByID, KindNotFound, "task %d does not exist", id)
	}
	task := copyTask(t.task)
	return &task, nil
}

func (m *Memory) TasksOwnedByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	if err := m.enter(ctx, OpTasksOwned); err != nil {
		return nil, err
	}
	return m.list(func(t *memTask) bool {
		return t.task.ActualOwner == userID && slices.Contains(statuses, t.task.Status)
	}), nil
}

func (m *Memory) TasksAssignedAsPotentialOwnerByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	if err := m.enter(ctx, OpTasksPotential); err != nil {
		return nil, err
	}
	return m.list(func(t *memTask) bool {
		return t.task.ActualOwner == "" && slices.Contains(statuses, t.task.Status) && t.isPotential(userID)
	}), nil
}

func (m *Memory) list(match func(*memTask) bool) []schema.TaskSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schema.TaskSummary
	for _, t := range m.tasks {
		if match(t) {
			out = append(out, t.task.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Claim(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpClaim, id, func(t *memTask) error {
		if t.task.Status != schema.StatusReady && t.task.Status != schema.StatusCreated {
			return fmt.Errorf("task %d is %s", id, t.task.Status)
		}
		if !t.isPotential(userID) {
			return fmt.Errorf("user %s is not a potential owner of task %d", userID, id)
		}
		t.task.Status = schema.StatusReserved
		t.task.ActualOwner = userID
		return nil
	})
}

func (m *Memory) Start(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpStart, id, func(t *memTask) error {
		switch {
		case t.task.Status == schema.StatusReserved && t.task.ActualOwner == userID:
		case t.task.Status == schema.StatusReady && t.isPotential(userID):
			t.task.ActualOwner = userID
		default:
			return fmt.Errorf("task %d is %s for %s", id, t.task.Status, describeOwner(t.task.ActualOwner))
		}
		t.task.Status = schema.StatusInProgress
		return nil
	})
}

func (m *Memory) Stop(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpStop, id, func(t *memTask) error {
		if err := t.requireOwner(userID, schema.StatusInProgress); err != nil {
			return err
		}
		t.task.Status = schema.StatusReserved
		return nil
	})
}

func (m *Memory) Release(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpRelease, id, func(t *memTask) error {
		if err := t.requireOwner(userID, schema.StatusReserved, schema.StatusInProgress); err != nil {
			return err
		}
		t.task.Status = schema.StatusReady
		t.task.ActualOwner = ""
		return nil
	})
}

func (m *Memory) Complete(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return m.transition(ctx, OpComplete, id, func(t *memTask) error {
		if err := t.requireOwner(userID, schema.StatusInProgress); err != nil {
			return err
		}
		t.task.Status = schema.StatusCompleted
		t.task.OutputVariables = vars.Clone()
		return nil
	})
}

func (m *Memory) Fail(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return m.transition(ctx, OpFail, id, func(t *memTask) error {
		if err := t.requireOwner(userID, schema.StatusInProgress); err != nil {
			return err
		}
		t.task.Status = schema.StatusFailed
		t.task.OutputVariables = vars.Clone()
		return nil
	})
}

func (m *Memory) Skip(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpSkip, id, func(t *memTask) error {
		if !schema.IsOpenStatus(t.task.Status) {
			return fmt.Errorf("task %d is already %s", id, t.task.Status)
		}
		t.task.Status = schema.StatusObsolete
		return nil
	})
}

func (m *Memory) Exit(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpExit, id, func(t *memTask) error {
		if !schema.IsOpenStatus(t.task.Status) {
			return fmt.Errorf("task %d is already %s", id, t.task.Status)
		}
		t.task.Status = schema.StatusExited
		return nil
	})
}

func (m *Memory) Suspend(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpSuspend, id, func(t *memTask) error {
		switch t.task.Status {
		case schema.StatusReady, schema.StatusReserved, schema.StatusInProgress:
		default:
			return fmt.Errorf("task %d is %s", id, t.task.Status)
		}
		t.suspendedFrom = t.task.Status
		t.task.Status = schema.StatusSuspended
		return nil
	})
}

func (m *Memory) Resume(ctx context.Context, id int64, userID string) error {
	return m.transition(ctx, OpResume, id, func(t *memTask) error {
		if t.task.Status != schema.StatusSuspended {
			return fmt.Errorf("task %d is not suspended", id)
		}
		t.task.Status = t.suspendedFrom
		if t.task.Status == "" {
			t.task.Status = schema.StatusReady
		}
		t.suspendedFrom = ""
		return nil
	})
}

func (m *Memory) Delegate(ctx context.Context, id int64, userID, targetUserID string) error {
	return m.transition(ctx, OpDelegate, id, func(t *memTask) error {
		if !schema.IsOpenStatus(t.task.Status) || t.task.Status == schema.StatusSuspended {
			return fmt.Errorf("task %d is %s", id, t.task.Status)
		}
		if t.task.ActualOwner != userID && !t.isPotential(userID) {
			return fmt.Errorf("user %s may not delegate task %d", userID, id)
		}
		if !slices.Contains(t.potential, targetUserID) {
			t.potential = append(t.potential, targetUserID)
		}
		t.task.Status = schema.StatusReserved
		t.task.ActualOwner = targetUserID
		return nil
	})
}

func (m *Memory) Forward(ctx context.Context, id int64, userID, targetUserID string) error {
	return m.transition(ctx, OpForward, id, func(t *memTask) error {
		switch t.task.Status {
		case schema.StatusReady, schema.StatusReserved, schema.StatusInProgress:
		default:
			return fmt.Errorf("task %d is %s", id, t.task.Status)
		}
		if t.task.ActualOwner != userID && !t.isPotential(userID) {
			return fmt.Errorf("user %s may not forward task %d", userID, id)
		}
		t.potential = []string{targetUserID}
		t.task.Status = schema.StatusReady
		t.task.ActualOwner = ""
		return nil
	})
}

func (m *Memory) Nominate(ctx context.Context, id int64, userID string, candidates []string) error {
	return m.transition(ctx, OpNominate, id, func(t *memTask) error {
		if t.task.Status != schema.StatusCreated {
			return fmt.Errorf("task %d is %s", id, t.task.Status)
		}
		if len(candidates) == 0 {
			return fmt.Errorf("no candidates")
		}
		t.potential = slices.Clone(candidates)
		if len(candidates) == 1 {
			t.task.Status = schema.StatusReserved
			t.task.ActualOwner = candidates[0]
		} else {
			t.task.Status = schema.StatusReady
		}
		return nil
	})
}

func (m *Memory) ContentByID(ctx context.Context, id int64) (*schema.Content, error) {
	return m.blob(ctx, OpContentByID, m.contents, id)
}

func (m *Memory) AttachmentByID(ctx context.Context, id int64) (*schema.Content, error) {
	return m.blob(ctx, OpAttachmentByID, m.attachments, id)
}

func (m *Memory) blob(ctx context.Context, op string, from map[int64]*schema.Content, id int64) (*schema.Content, error) {
	if err := m.enter(ctx, op); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := from[id]
	if !ok {
		return nil, Errorf(op, KindNotFound, "content %d does not exist", id)
	}
	out := *c
	out.Data = slices.Clone(c.Data)
	return &out, nil
}

// StartProcess records a new process instance. When params carries an
// "actorId" string, a Ready task named after the process is created for
// that user.
func (m *Memory) StartProcess(ctx context.Context, processName string, params map[string]any) (*schema.ProcessInstance, error) {
	if err := m.enter(ctx, OpStartProcess); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.definitions) > 0 && !m.definitions[processName] {
		return nil, Errorf(OpStartProcess, KindRejected, "unknown process %q", processName)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var vars schema.Variables
	for _, k := range keys {
		vars = vars.Set(k, fmt.Sprint(params[k]))
	}

	pi := schema.ProcessInstance{ID: uuid.NewString(), ProcessName: processName, Variables: vars}
	m.processes = append(m.processes, pi)

	if actor, ok := params["actorId"].(string); ok && actor != "" {
		id := m.nextID
		m.nextID++
		m.tasks[id] = &memTask{
			task: schema.Task{
				ID:                id,
				Name:              processName,
				Status:            schema.StatusReady,
				ProcessInstanceID: pi.ID,
				InputVariables:    vars.Clone(),
				CreatedOn:         time.Now().UTC(),
			},
			potential: []string{actor},
		}
	}

	out := pi
	out.Variables = vars.Clone()
	return &out, nil
}

// transition applies fn to a task; an fn error is a rejection.
func (m *Memory) transition(ctx context.Context, op string, id int64, fn func(*memTask) error) error {
	if err := m.enter(ctx, op); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Errorf(op, KindNotFound, "task %d does not exist", id)
	}
	if err := fn(t); err != nil {
		return &RemoteError{Op: op, Kind: KindRejected, Message: err.Error()}
	}
	return nil
}

func (t *memTask) isPotential(userID string) bool {
	return len(t.potential) == 0 || slices.Contains(t.potential, userID)
}

func (t *memTask) requireOwner(userID string, statuses ...string) error {
	if t.task.ActualOwner != userID {
		return fmt.Errorf("task %d is owned by %s", t.task.ID, describeOwner(t.task.ActualOwner))
	}
	if !slices.Contains(statuses, t.task.Status) {
		return fmt.Errorf("task %d is %s", t.task.ID, t.task.Status)
	}
	return nil
}

func describeOwner(owner string) string {
	if owner == "" {
		return "nobody"
	}
	return owner
}

func copyTask(t schema.Task) schema.Task {
	t.InputVariables = t.InputVariables.Clone()
	t.OutputVariables = t.OutputVariables.Clone()
	return t
}
