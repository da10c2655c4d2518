package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
)

// AcquireLock attempts the atomic conditional write that opens a weekly run.
// It succeeds when no row exists for the key or the previous run released its
// lock; it returns false on contention without blocking or retrying. An
// ACQUIRED row is never overwritten here, whatever its age: freeing an
// abandoned lock is ReclaimStaleLocks' job.
func (s *SQLiteStore) AcquireLock(ctx context.Context, key, runID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weekly_locks (lock_key, run_id, acquired_at, expires_at, status)
		 VALUES (?, ?, ?, ?, 'ACQUIRED')
		 ON CONFLICT(lock_key) DO UPDATE SET
			run_id = excluded.run_id,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at,
			status = 'ACQUIRED'
		 WHERE weekly_locks.status = 'RELEASED'`,
		key, runID, formatTimestamp(now), formatTimestamp(now.Add(ttl)))
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseLock marks the lock released, but only for the run that holds it.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, key, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE weekly_locks SET status = 'RELEASED'
		 WHERE lock_key = ? AND run_id = ? AND status = 'ACQUIRED'`,
		key, runID)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotHeld, key)
	}
	return nil
}

// Lock returns the current lock row for a key, if any.
func (s *SQLiteStore) Lock(ctx context.Context, key string) (model.WeeklyLock, bool, error) {
	var l model.WeeklyLock
	var acquired, expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT lock_key, run_id, acquired_at, expires_at, status
		 FROM weekly_locks WHERE lock_key = ?`, key).Scan(
		&l.Key, &l.RunID, &acquired, &expires, (*string)(&l.Status))
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeeklyLock{}, false, nil
	}
	if err != nil {
		return model.WeeklyLock{}, false, fmt.Errorf("query lock %s: %w", key, err)
	}
	l.AcquiredAt = parseTimestamp(acquired)
	l.ExpiresAt = parseTimestamp(expires)
	return l, true, nil
}

// ReclaimStaleLocks releases every ACQUIRED lock older than cutoff and returns
// the reclaimed rows for the audit trail. This is the only sanctioned path for
// freeing abandoned locks; there is deliberately no blanket wipe.
func (s *SQLiteStore) ReclaimStaleLocks(ctx context.Context, cutoff time.Time) ([]model.WeeklyLock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lock reclaim: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.QueryContext(ctx,
		`SELECT lock_key, run_id, acquired_at, expires_at, status
		 FROM weekly_locks
		 WHERE status = 'ACQUIRED' AND acquired_at < ?
		 ORDER BY lock_key`,
		formatTimestamp(cutoff.UTC()))
	if err != nil {
		return nil, fmt.Errorf("query stale locks: %w", err)
	}

	var stale []model.WeeklyLock
	for rows.Next() {
		var l model.WeeklyLock
		var acquired, expires string
		if err := rows.Scan(&l.Key, &l.RunID, &acquired, &expires, (*string)(&l.Status)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale lock: %w", err)
		}
		l.AcquiredAt = parseTimestamp(acquired)
		l.ExpiresAt = parseTimestamp(expires)
		stale = append(stale, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale locks: %w", err)
	}

	for _, l := range stale {
		// Guard on run_id so a lock re-acquired between the select and this
		// update is left alone.
		if _, err := tx.ExecContext(ctx,
			`UPDATE weekly_locks SET status = 'RELEASED'
			 WHERE lock_key = ? AND run_id = ? AND status = 'ACQUIRED'`,
			l.Key, l.RunID); err != nil {
			return nil, fmt.Errorf("reclaim lock %s: %w", l.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lock reclaim: %w", err)
	}
	return stale, nil
}
