package database

import (
	"context"
	"fmt"
)

// InsertAnswer appends an immutable answer record.
func (t *Tx) InsertAnswer(ctx context.Context, a *QuizAnswer) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO quiz_answers (id, client_id, session_id, qid, selected_index, is_correct, answered_at, category, difficulty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.SessionID, a.QID, a.SelectedIndex, boolToInt(a.IsCorrect),
		toMillis(a.AnsweredAt), a.Category, a.Difficulty,
	)
	if err != nil {
		return fmt.Errorf("inserting answer for %s: %w", a.ClientID, err)
	}
	return nil
}

// GetAnswersForClient returns a client's answers, newest first.
func (db *DB) GetAnswersForClient(ctx context.Context, clientID string, limit int) ([]QuizAnswer, error) {
	query := `SELECT id, client_id, session_id, qid, selected_index, is_correct, answered_at, category, difficulty
		FROM quiz_answers WHERE client_id = ? ORDER BY answered_at DESC, rowid DESC`
	args := []any{clientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []QuizAnswer
	for rows.Next() {
		var a QuizAnswer
		var correct int
		var at int64
		if err := rows.Scan(&a.ID, &a.ClientID, &a.SessionID, &a.QID, &a.SelectedIndex, &correct,
			&at, &a.Category, &a.Difficulty); err != nil {
			return nil, err
		}
		a.IsCorrect = correct != 0
		a.AnsweredAt = fromMillis(at)
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
