package database

import (
	"context"
	"database/sql"
	"fmt"
)

// GetQuizStats returns a client's stats, or nil if they never answered.
func (db *DB) GetQuizStats(ctx context.Context, clientID string) (*QuizStats, error) {
	return getQuizStats(ctx, db.conn, clientID)
}

// GetQuizStats is GetQuizStats within the transaction.
func (t *Tx) GetQuizStats(ctx context.Context, clientID string) (*QuizStats, error) {
	return getQuizStats(ctx, t.tx, clientID)
}

// SaveQuizStats inserts or overwrites the stats row for s.ClientID.
func (t *Tx) SaveQuizStats(ctx context.Context, s *QuizStats) error {
	var lastAt *int64
	if s.LastAnsweredAt != nil {
		ms := toMillis(*s.LastAnsweredAt)
		lastAt = &ms
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO quiz_stats (client_id, total, correct, streak, daily_count, last_answered_day, last_answered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			total = excluded.total,
			correct = excluded.correct,
			streak = excluded.streak,
			daily_count = excluded.daily_count,
			last_answered_day = excluded.last_answered_day,
			last_answered_at = excluded.last_answered_at,
			updated_at = excluded.updated_at`,
		s.ClientID, s.Total, s.Correct, s.Streak, s.DailyCount, s.LastAnsweredDay, lastAt, toMillis(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving stats for %s: %w", s.ClientID, err)
	}
	return nil
}

func getQuizStats(ctx context.Context, q querier, clientID string) (*QuizStats, error) {
	row := q.QueryRowContext(ctx,
		`SELECT client_id, total, correct, streak, daily_count, last_answered_day, last_answered_at, updated_at
		FROM quiz_stats WHERE client_id = ?`, clientID,
	)
	var s QuizStats
	var lastAt *int64
	var updated int64
	if err := row.Scan(&s.ClientID, &s.Total, &s.Correct, &s.Streak, &s.DailyCount,
		&s.LastAnsweredDay, &lastAt, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastAt != nil {
		t := fromMillis(*lastAt)
		s.LastAnsweredAt = &t
	}
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}
