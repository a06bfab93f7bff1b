package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LeaseStore hands out per-user sync leases. A lease row lives in the
// database, so it also excludes cycles run by other processes sharing
// the same cache.
type LeaseStore struct {
	db *DB
}

// NewLeaseStore creates a LeaseStore backed by db.
func NewLeaseStore(db *DB) *LeaseStore {
	return &LeaseStore{db: db}
}

// Acquire takes the lease for userID on behalf of holder until ttl from
// now. It returns false when another holder has an unexpired lease.
// Re-acquiring a lease already held extends it.
func (s *LeaseStore) Acquire(ctx context.Context, userID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	var acquired bool
	err := s.db.withTx(ctx, "acquire lease", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sync_leases (user_id, holder, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				holder = excluded.holder,
				expires_at = excluded.expires_at
			WHERE sync_leases.holder = excluded.holder OR sync_leases.expires_at <= ?`,
			userID, holder, formatTime(now.Add(ttl)), formatTime(now))
		if err != nil {
			return dsErr(fmt.Sprintf("acquire lease for %s", userID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dsErr(fmt.Sprintf("acquire lease for %s", userID), err)
		}
		acquired = n > 0
		return nil
	})
	return acquired, err
}

// Release gives up the lease for userID if holder still has it.
func (s *LeaseStore) Release(ctx context.Context, userID, holder string) error {
	return s.db.withTx(ctx, "release lease", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sync_leases WHERE user_id = ? AND holder = ?`, userID, holder); err != nil {
			return dsErr(fmt.Sprintf("release lease for %s", userID), err)
		}
		return nil
	})
}

// Holder returns who holds the lease for userID, or "" when it is free
// or expired.
func (s *LeaseStore) Holder(ctx context.Context, userID string) (string, error) {
	if s.db.conn == nil {
		return "", ErrClosed
	}
	var holder string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT holder FROM sync_leases WHERE user_id = ? AND expires_at > ?`,
		userID, formatTime(time.Now())).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dsErr("get lease", err)
	}
	return holder, nil
}
