package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/termwork/tasksync/internal/schema"
)

// TaskStore reads and writes LocalTask records.
//
// Reads always see committed state. Save and SetAction are buffered in the
// store's default batch until Commit; callers that need their own unit of
// work (the reconciliation engine) use NewBatch instead.
type TaskStore struct {
	db *DB

	mu      sync.Mutex
	pending *Batch
}

// NewTaskStore creates a TaskStore backed by db.
func NewTaskStore(db *DB) *TaskStore {
	s := &TaskStore{db: db}
	s.pending = s.NewBatch()
	return s
}

// DB returns the database the store writes to.
func (s *TaskStore) DB() *DB {
	return s.db
}

const taskColumns = `id, name, component_id, component_name, status, owner,
	action, action_user, action_status, input_variables, output_variables, updated_at`

// GetByID retrieves one task. Returns ErrNotFound if it does not exist.
func (s *TaskStore) GetByID(ctx context.Context, id int64) (*schema.LocalTask, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM local_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, dsErr("get task", err)
	}
	return task, nil
}

// GetOpenOwnedTasks returns every task locally recorded as open and owned
// by userID.
func (s *TaskStore) GetOpenOwnedTasks(ctx context.Context, userID string) ([]*schema.LocalTask, error) {
	return s.ListTasks(ctx, TaskFilter{Owner: userID, Statuses: schema.OpenStatuses(), IncludeUnknown: true})
}

// TaskFilter configures ListTasks. Zero values mean "any".
type TaskFilter struct {
	// Owner filters by owner (empty = all owners)
	Owner string
	// Statuses filters to any of the given statuses (empty = all)
	Statuses []string
	// IncludeUnknown also matches statuses outside the remote vocabulary;
	// only meaningful together with Statuses
	IncludeUnknown bool
	// ActionStatus filters by local action status (empty = all)
	ActionStatus string
	// ComponentID filters by terminology component (empty = all)
	ComponentID string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

var allStatuses = []string{
	schema.StatusCreated, schema.StatusReady, schema.StatusReserved, schema.StatusInProgress,
	schema.StatusSuspended, schema.StatusCompleted, schema.StatusFailed, schema.StatusError,
	schema.StatusExited, schema.StatusObsolete,
}

// ListTasks retrieves tasks matching the given filter, ordered by id.
func (s *TaskStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*schema.LocalTask, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}

	var conditions []string
	var args []interface{}

	if filter.Owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, filter.Owner)
	}

	if len(filter.Statuses) > 0 {
		cond := "status IN (" + placeholders(len(filter.Statuses)) + ")"
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
		if filter.IncludeUnknown {
			cond = "(" + cond + " OR status NOT IN (" + placeholders(len(allStatuses)) + "))"
			for _, st := range allStatuses {
				args = append(args, st)
			}
		}
		conditions = append(conditions, cond)
	}

	if filter.ActionStatus != "" {
		conditions = append(conditions, "action_status = ?")
		args = append(args, filter.ActionStatus)
	}

	if filter.ComponentID != "" {
		conditions = append(conditions, "component_id = ?")
		args = append(args, filter.ComponentID)
	}

	query := `SELECT ` + taskColumns + ` FROM local_tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dsErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []*schema.LocalTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, dsErr("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, dsErr("iterate tasks", err)
	}
	return tasks, nil
}

// Count returns the total number of cached tasks.
func (s *TaskStore) Count(ctx context.Context) (int, error) {
	if s.db.conn == nil {
		return 0, ErrClosed
	}
	var count int
	if err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM local_tasks").Scan(&count); err != nil {
		return 0, dsErr("count tasks", err)
	}
	return count, nil
}

// CountByStatus returns the number of cached tasks per status.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM local_tasks GROUP BY status")
	if err != nil {
		return nil, dsErr("count by status", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, dsErr("count by status", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, dsErr("count by status", err)
	}
	return counts, nil
}

// Save buffers a full upsert of task in the default batch.
func (s *TaskStore) Save(task *schema.LocalTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Save(task)
}

// SetAction buffers an update of the local action fields in the default batch.
func (s *TaskStore) SetAction(id int64, action, actionStatus string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.SetAction(id, action, actionStatus)
}

// Commit flushes the default batch in one transaction. On failure the
// buffered writes are kept so the caller may retry or Discard.
func (s *TaskStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Commit(ctx)
}

// Discard drops every write buffered in the default batch.
func (s *TaskStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Discard()
}

// Pending returns the number of writes buffered in the default batch.
func (s *TaskStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

type writeKind int

const (
	writeFull writeKind = iota
	writeRemote
	writeAction
	writeQueue
)

type taskWrite struct {
	kind         writeKind
	task         *schema.LocalTask
	id           int64
	user         string
	action       string
	actionStatus string
}

// Batch buffers task writes and applies them atomically on Commit.
// A Batch is not safe for concurrent use.
type Batch struct {
	store  *TaskStore
	writes []taskWrite
}

// NewBatch starts an independent unit of work against the store.
func (s *TaskStore) NewBatch() *Batch {
	return &Batch{store: s}
}

// Save buffers a full upsert, local action fields included.
func (b *Batch) Save(task *schema.LocalTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	b.writes = append(b.writes, taskWrite{kind: writeFull, task: task.Clone()})
	return nil
}

// SaveRemote buffers an upsert of the remote-owned fields only. An existing
// row keeps its action and action status, so an action queued while a pull
// was in flight is not clobbered.
func (b *Batch) SaveRemote(task *schema.LocalTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	b.writes = append(b.writes, taskWrite{kind: writeRemote, task: task.Clone()})
	return nil
}

// SetAction buffers an update of the action fields of an existing task.
func (b *Batch) SetAction(id int64, action, actionStatus string) {
	b.writes = append(b.writes, taskWrite{kind: writeAction, id: id, action: action, actionStatus: actionStatus})
}

// QueueAction buffers a PENDING action on an existing task, recording
// userID as the user it is pushed for.
func (b *Batch) QueueAction(id int64, userID, action string) {
	b.writes = append(b.writes, taskWrite{kind: writeQueue, id: id, user: userID, action: action, actionStatus: schema.ActionPending})
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int {
	return len(b.writes)
}

// Discard drops every buffered write.
func (b *Batch) Discard() {
	b.writes = nil
}

const upsertFullSQL = `
INSERT INTO local_tasks (` + taskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	component_id = excluded.component_id,
	component_name = excluded.component_name,
	status = excluded.status,
	owner = excluded.owner,
	action = excluded.action,
	action_user = excluded.action_user,
	action_status = excluded.action_status,
	input_variables = excluded.input_variables,
	output_variables = excluded.output_variables,
	updated_at = excluded.updated_at
`

const upsertRemoteSQL = `
INSERT INTO local_tasks (` + taskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	component_id = excluded.component_id,
	component_name = excluded.component_name,
	status = excluded.status,
	owner = excluded.owner,
	input_variables = excluded.input_variables,
	output_variables = excluded.output_variables,
	updated_at = excluded.updated_at
`

// Commit applies every buffered write in a single transaction. Nothing is
// written if any statement fails; the buffer is cleared only on success.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}

	err := b.store.db.withTx(ctx, "commit tasks", func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		for _, w := range b.writes {
			switch w.kind {
			case writeFull, writeRemote:
				query := upsertFullSQL
				if w.kind == writeRemote {
					query = upsertRemoteSQL
				}
				updatedAt := now
				if !w.task.UpdatedAt.IsZero() {
					updatedAt = formatTime(w.task.UpdatedAt)
				}
				if _, err := tx.ExecContext(ctx, query,
					w.task.ID,
					w.task.Name,
					w.task.ComponentID,
					w.task.ComponentName,
					w.task.Status,
					w.task.Owner,
					w.task.Action,
					w.task.ActionUser,
					w.task.ActionStatus,
					w.task.InputVariables,
					w.task.OutputVariables,
					updatedAt,
				); err != nil {
					return dsErr(fmt.Sprintf("upsert task %d", w.task.ID), err)
				}

			case writeAction, writeQueue:
				var res sql.Result
				var err error
				if w.kind == writeQueue {
					res, err = tx.ExecContext(ctx,
						`UPDATE local_tasks SET action = ?, action_user = ?, action_status = ?, updated_at = ? WHERE id = ?`,
						w.action, w.user, w.actionStatus, now, w.id)
				} else {
					res, err = tx.ExecContext(ctx,
						`UPDATE local_tasks SET action = ?, action_status = ?, updated_at = ? WHERE id = ?`,
						w.action, w.actionStatus, now, w.id)
				}
				if err != nil {
					return dsErr(fmt.Sprintf("set action on task %d", w.id), err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return dsErr(fmt.Sprintf("set action on task %d", w.id), err)
				}
				if n == 0 {
					return fmt.Errorf("set action on task %d: %w", w.id, ErrNotFound)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.writes = nil
	return nil
}

// ResolveAction records the outcome of pushing action queued by queuedBy. The
// write only lands while that exact action is still PENDING for that user;
// it returns false and writes nothing when the action was re-queued or
// cleared in the meantime.
func (s *TaskStore) ResolveAction(ctx context.Context, id int64, queuedBy, action, outcome string) (bool, error) {
	var resolved bool
	err := s.db.withTx(ctx, "resolve action", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE local_tasks SET action_status = ?, updated_at = ?
			WHERE id = ? AND action = ? AND action_user = ? AND action_status = ?`,
			outcome, formatTime(time.Now()), id, action, queuedBy, schema.ActionPending)
		if err != nil {
			return dsErr(fmt.Sprintf("resolve action on task %d", id), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dsErr(fmt.Sprintf("resolve action on task %d", id), err)
		}
		resolved = n > 0
		return nil
	})
	return resolved, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*schema.LocalTask, error) {
	var task schema.LocalTask
	var updatedAt string

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.ComponentID,
		&task.ComponentName,
		&task.Status,
		&task.Owner,
		&task.Action,
		&task.ActionUser,
		&task.ActionStatus,
		&task.InputVariables,
		&task.OutputVariables,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.UpdatedAt = parseTime(updatedAt)
	return &task, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
