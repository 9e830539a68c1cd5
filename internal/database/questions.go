package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const questionColumns = `qid, prompt, choices, correct_index, explanation, category, difficulty, tags, is_published, updated_at`

// UpsertQuestion inserts a question or replaces the one with the same qid.
func (db *DB) UpsertQuestion(ctx context.Context, q QuizQuestion) error {
	if q.QID == "" {
		return fmt.Errorf("question qid is required")
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Choices) {
		return fmt.Errorf("question %s: correct index %d out of range for %d choices", q.QID, q.CorrectIndex, len(q.Choices))
	}

	choicesJSON, err := encodeList(q.Choices)
	if err != nil {
		return err
	}
	var tagsJSON *string
	if q.Tags != nil {
		s, err := encodeList(q.Tags)
		if err != nil {
			return err
		}
		tagsJSON = &s
	}
	updated := q.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO quiz_questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(qid) DO UPDATE SET
			prompt = excluded.prompt,
			choices = excluded.choices,
			correct_index = excluded.correct_index,
			explanation = excluded.explanation,
			category = excluded.category,
			difficulty = excluded.difficulty,
			tags = excluded.tags,
			is_published = excluded.is_published,
			updated_at = excluded.updated_at`,
		q.QID, q.Prompt, choicesJSON, q.CorrectIndex, q.Explanation, q.Category, q.Difficulty,
		tagsJSON, boolToInt(q.IsPublished), toMillis(updated),
	)
	if err != nil {
		return fmt.Errorf("upserting question %s: %w", q.QID, err)
	}
	return nil
}

// GetQuestion returns a question by qid, published or not, or nil.
func (db *DB) GetQuestion(ctx context.Context, qid string) (*QuizQuestion, error) {
	return getQuestion(ctx, db.conn, qid)
}

// PublishedQuestions returns every question eligible for serving, ordered by qid.
func (db *DB) PublishedQuestions(ctx context.Context) ([]QuizQuestion, error) {
	return publishedQuestions(ctx, db.conn)
}

// GetQuestion is GetQuestion within the transaction.
func (t *Tx) GetQuestion(ctx context.Context, qid string) (*QuizQuestion, error) {
	return getQuestion(ctx, t.tx, qid)
}

// PublishedQuestions is PublishedQuestions within the transaction.
func (t *Tx) PublishedQuestions(ctx context.Context) ([]QuizQuestion, error) {
	return publishedQuestions(ctx, t.tx)
}

func getQuestion(ctx context.Context, q querier, qid string) (*QuizQuestion, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+questionColumns+` FROM quiz_questions WHERE qid = ?`, qid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return &questions[0], nil
}

func publishedQuestions(ctx context.Context, q querier) ([]QuizQuestion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM quiz_questions WHERE is_published = 1 ORDER BY qid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func scanQuestions(rows *sql.Rows) ([]QuizQuestion, error) {
	var questions []QuizQuestion
	for rows.Next() {
		var q QuizQuestion
		var choicesJSON string
		var tagsJSON *string
		var published int
		var updated int64
		if err := rows.Scan(&q.QID, &q.Prompt, &choicesJSON, &q.CorrectIndex, &q.Explanation,
			&q.Category, &q.Difficulty, &tagsJSON, &published, &updated); err != nil {
			return nil, err
		}
		q.Choices = decodeList(&choicesJSON)
		q.Tags = decodeList(tagsJSON)
		q.IsPublished = published != 0
		q.UpdatedAt = fromMillis(updated)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
