package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// querier is the subset of *sql.DB and *sql.Tx shared by the read helpers.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serialises writers, so the read-then-write quiz
	// transactions never interleave and PRAGMAs apply to every statement.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// GetStats returns row counts for the status command.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.Articles},
		{"SELECT COUNT(*) FROM articles WHERE featured = 1", &s.FeaturedArticles},
		{"SELECT COUNT(*) FROM synonym_rules", &s.SynonymRules},
		{"SELECT COUNT(*) FROM synonym_rules WHERE enabled = 1", &s.EnabledRules},
		{"SELECT COUNT(*) FROM search_misses", &s.Misses},
		{"SELECT COUNT(*) FROM search_misses WHERE status = 'pending'", &s.PendingMisses},
		{"SELECT COUNT(*) FROM quiz_questions", &s.Questions},
		{"SELECT COUNT(*) FROM quiz_questions WHERE is_published = 1", &s.PublishedQuestions},
		{"SELECT COUNT(*) FROM quiz_sessions", &s.Sessions},
		{"SELECT COUNT(*) FROM quiz_answers", &s.Answers},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
