package database

import (
	"context"
	"database/sql"
	"fmt"
)

const sessionColumns = `id, client_id, mode, recent_qids, current_qid, created_at, updated_at`

// GetSession returns a session by ID, or nil.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*QuizSession, error) {
	return getSession(ctx, db.conn, `WHERE id = ?`, sessionID)
}

// GetSession is GetSession within the transaction.
func (t *Tx) GetSession(ctx context.Context, sessionID string) (*QuizSession, error) {
	return getSession(ctx, t.tx, `WHERE id = ?`, sessionID)
}

// GetSessionByClient returns the session for a (client, mode) pair, or nil.
func (t *Tx) GetSessionByClient(ctx context.Context, clientID, mode string) (*QuizSession, error) {
	return getSession(ctx, t.tx, `WHERE client_id = ? AND mode = ?`, clientID, mode)
}

// InsertSession creates a new session row.
func (t *Tx) InsertSession(ctx context.Context, s *QuizSession) error {
	recent, err := encodeList(s.RecentQIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO quiz_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ClientID, s.Mode, recent, s.CurrentQID, toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session for %s: %w", s.ClientID, err)
	}
	return nil
}

// UpdateSession writes the mutable fields of a session back.
func (t *Tx) UpdateSession(ctx context.Context, s *QuizSession) error {
	recent, err := encodeList(s.RecentQIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE quiz_sessions SET recent_qids = ?, current_qid = ?, updated_at = ? WHERE id = ?`,
		recent, s.CurrentQID, toMillis(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", s.ID, err)
	}
	return nil
}

func getSession(ctx context.Context, q querier, where string, args ...any) (*QuizSession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions `+where, args...)

	var s QuizSession
	var recent string
	var created, updated int64
	if err := row.Scan(&s.ID, &s.ClientID, &s.Mode, &recent, &s.CurrentQID, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.RecentQIDs = decodeList(&recent)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}
