package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordMiss inserts a pending miss or bumps the count of the existing row
// for the same normalized query. The upsert runs as one statement, so
// concurrent callers never produce duplicates or lose increments.
func (db *DB) RecordMiss(ctx context.Context, query, normalized string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO search_misses (query, normalized, count, status, last_happened)
		VALUES (?, ?, 1, 'pending', ?)
		ON CONFLICT(normalized) DO UPDATE SET
			count = count + 1,
			last_happened = excluded.last_happened`,
		query, normalized, toMillis(at),
	)
	return err
}

// GetMiss returns the miss for a normalized query, or nil.
func (db *DB) GetMiss(ctx context.Context, normalized string) (*SearchMiss, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, query, normalized, count, status, last_happened FROM search_misses WHERE normalized = ?`,
		normalized,
	)
	var m SearchMiss
	var last int64
	if err := row.Scan(&m.ID, &m.Query, &m.Normalized, &m.Count, &m.Status, &last); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.LastHappened = fromMillis(last)
	return &m, nil
}

// ListMisses returns misses ordered by count, most frequent first.
// An empty status returns all statuses; limit <= 0 means no limit.
func (db *DB) ListMisses(ctx context.Context, status string, limit int) ([]SearchMiss, error) {
	query := `SELECT id, query, normalized, count, status, last_happened FROM search_misses`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY count DESC, last_happened DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var misses []SearchMiss
	for rows.Next() {
		var m SearchMiss
		var last int64
		if err := rows.Scan(&m.ID, &m.Query, &m.Normalized, &m.Count, &m.Status, &last); err != nil {
			return nil, err
		}
		m.LastHappened = fromMillis(last)
		misses = append(misses, m)
	}
	return misses, rows.Err()
}

// SetMissStatus changes the triage status of a miss. Returns false if no row matched.
func (db *DB) SetMissStatus(ctx context.Context, normalized, status string) (bool, error) {
	switch status {
	case MissPending, MissResolved, MissIgnored:
	default:
		return false, fmt.Errorf("unknown miss status %q", status)
	}
	result, err := db.conn.ExecContext(ctx,
		`UPDATE search_misses SET status = ? WHERE normalized = ?`, status, normalized,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
