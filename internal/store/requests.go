package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/termwork/tasksync/internal/schema"
)

// RequestStore persists ProcessInstanceCreationRequest records.
type RequestStore struct {
	db *DB
}

// NewRequestStore creates a RequestStore backed by db.
func NewRequestStore(db *DB) *RequestStore {
	return &RequestStore{db: db}
}

// DB returns the database the store writes to.
func (s *RequestStore) DB() *DB {
	return s.db
}

const requestColumns = `id, process_name, params, variables, user_id, component_id,
	component_name, request_time, sync_time, wf_id, status, sync_message`

// Save inserts a new request (ID == 0) or updates an existing one.
//
// Updates only apply while the stored row is still REQUESTED: a request
// that reached CREATED or REJECTED is never modified again and Save
// returns ErrTerminalRequest. On insert req.ID is set.
func (s *RequestStore) Save(ctx context.Context, req *schema.ProcessInstanceCreationRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid process request: %w", err)
	}

	params, err := json.Marshal(req.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if req.Params == nil {
		params = []byte("{}")
	}

	return s.db.withTx(ctx, "save request", func(tx *sql.Tx) error {
		if req.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO process_requests (
					process_name, params, variables, user_id, component_id, component_name,
					request_time, sync_time, wf_id, status, sync_message
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				req.ProcessName,
				string(params),
				req.Variables,
				req.UserID,
				req.ComponentID,
				req.ComponentName,
				formatTime(req.RequestTime),
				timeToNullString(req.SyncTime),
				req.WfID,
				string(req.Status),
				req.SyncMessage,
			)
			if err != nil {
				return dsErr("insert request", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return dsErr("insert request", err)
			}
			req.ID = id
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE process_requests SET
				process_name = ?, params = ?, variables = ?, user_id = ?,
				component_id = ?, component_name = ?, sync_time = ?, wf_id = ?,
				status = ?, sync_message = ?
			WHERE id = ? AND status = 'REQUESTED'`,
			req.ProcessName,
			string(params),
			req.Variables,
			req.UserID,
			req.ComponentID,
			req.ComponentName,
			timeToNullString(req.SyncTime),
			req.WfID,
			string(req.Status),
			req.SyncMessage,
			req.ID,
		)
		if err != nil {
			return dsErr(fmt.Sprintf("update request %d", req.ID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dsErr(fmt.Sprintf("update request %d", req.ID), err)
		}
		if n > 0 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx, `SELECT status FROM process_requests WHERE id = ?`, req.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("request %d: %w", req.ID, ErrNotFound)
		}
		if err != nil {
			return dsErr(fmt.Sprintf("update request %d", req.ID), err)
		}
		return fmt.Errorf("request %d is %s: %w", req.ID, status, ErrTerminalRequest)
	})
}

// Restore inserts req keeping its ID, as read back from an export. An
// existing row with the same ID is left untouched and Restore reports
// false.
func (s *RequestStore) Restore(ctx context.Context, req *schema.ProcessInstanceCreationRequest) (bool, error) {
	if req.ID <= 0 {
		return false, fmt.Errorf("restored request needs an id")
	}
	if err := req.Validate(); err != nil {
		return false, fmt.Errorf("invalid process request: %w", err)
	}
	params, err := json.Marshal(req.Params)
	if err != nil {
		return false, fmt.Errorf("failed to marshal params: %w", err)
	}
	if req.Params == nil {
		params = []byte("{}")
	}

	var inserted bool
	err = s.db.withTx(ctx, "restore request", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO process_requests (`+requestColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			req.ID,
			req.ProcessName,
			string(params),
			req.Variables,
			req.UserID,
			req.ComponentID,
			req.ComponentName,
			formatTime(req.RequestTime),
			timeToNullString(req.SyncTime),
			req.WfID,
			string(req.Status),
			req.SyncMessage,
		)
		if err != nil {
			return dsErr(fmt.Sprintf("restore request %d", req.ID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dsErr(fmt.Sprintf("restore request %d", req.ID), err)
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// GetByID retrieves one request. Returns ErrNotFound if it does not exist.
func (s *RequestStore) GetByID(ctx context.Context, id int64) (*schema.ProcessInstanceCreationRequest, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM process_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, dsErr("get request", err)
	}
	return req, nil
}

// GetPending returns every REQUESTED request, oldest first.
func (s *RequestStore) GetPending(ctx context.Context) ([]*schema.ProcessInstanceCreationRequest, error) {
	return s.ListRequests(ctx, RequestFilter{Statuses: []schema.RequestStatus{schema.RequestRequested}})
}

// GetCompleted returns every request that reached a terminal state
// (CREATED or REJECTED), oldest first.
func (s *RequestStore) GetCompleted(ctx context.Context) ([]*schema.ProcessInstanceCreationRequest, error) {
	return s.ListRequests(ctx, RequestFilter{Statuses: []schema.RequestStatus{schema.RequestCreated, schema.RequestRejected}})
}

// GetStale returns pending requests made more than olderThan before now.
func (s *RequestStore) GetStale(ctx context.Context, now time.Time, olderThan time.Duration) ([]*schema.ProcessInstanceCreationRequest, error) {
	return s.ListRequests(ctx, RequestFilter{
		Statuses: []schema.RequestStatus{schema.RequestRequested},
		Before:   now.Add(-olderThan),
	})
}

// RequestFilter configures ListRequests. Zero values mean "any".
type RequestFilter struct {
	// Statuses filters to any of the given statuses (empty = all)
	Statuses []schema.RequestStatus
	// UserID filters by requesting user (empty = all users)
	UserID string
	// Since keeps requests made at or after this time (zero = no bound)
	Since time.Time
	// Before keeps requests made strictly before this time (zero = no bound)
	Before time.Time
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListRequests retrieves requests matching filter, oldest first.
func (s *RequestStore) ListRequests(ctx context.Context, filter RequestFilter) ([]*schema.ProcessInstanceCreationRequest, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}

	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "request_time >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, "request_time < ?")
		args = append(args, formatTime(filter.Before))
	}

	query := `SELECT ` + requestColumns + ` FROM process_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY request_time ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dsErr("list requests", err)
	}
	defer rows.Close()

	var reqs []*schema.ProcessInstanceCreationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, dsErr("scan request", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, dsErr("iterate requests", err)
	}
	return reqs, nil
}

// CountByStatus returns the number of requests per status.
func (s *RequestStore) CountByStatus(ctx context.Context) (map[schema.RequestStatus]int, error) {
	if s.db.conn == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM process_requests GROUP BY status")
	if err != nil {
		return nil, dsErr("count requests", err)
	}
	defer rows.Close()

	counts := make(map[schema.RequestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, dsErr("count requests", err)
		}
		counts[schema.RequestStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, dsErr("count requests", err)
	}
	return counts, nil
}

func scanRequest(row rowScanner) (*schema.ProcessInstanceCreationRequest, error) {
	var req schema.ProcessInstanceCreationRequest
	var params, requestTime, status string
	var syncTime sql.NullString

	err := row.Scan(
		&req.ID,
		&req.ProcessName,
		&params,
		&req.Variables,
		&req.UserID,
		&req.ComponentID,
		&req.ComponentName,
		&requestTime,
		&syncTime,
		&req.WfID,
		&status,
		&req.SyncMessage,
	)
	if err != nil {
		return nil, err
	}

	req.RequestTime = parseTime(requestTime)
	req.SyncTime = nullStringToTime(syncTime)
	req.Status = schema.RequestStatus(status)

	req.Params = map[string]any{}
	if params != "" && params != "null" {
		// Keep integer params integral.
		dec := json.NewDecoder(strings.NewReader(params))
		dec.UseNumber()
		if err := dec.Decode(&req.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	return &req, nil
}
