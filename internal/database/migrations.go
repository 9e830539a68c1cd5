package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
// Timestamps are unix milliseconds; list-valued columns hold JSON arrays.
var migrations = []Migration{
	{
		Version:     1,
		Description: "article index, synonym rules, search misses",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    slug TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    excerpt TEXT,
    keywords TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    featured INTEGER NOT NULL DEFAULT 0,
    backlink_count INTEGER NOT NULL DEFAULT 0 CHECK(backlink_count >= 0),
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS synonym_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trigger_phrase TEXT NOT NULL,
    adds TEXT NOT NULL DEFAULT '[]',
    enabled INTEGER NOT NULL DEFAULT 1,
    source TEXT NOT NULL CHECK(source IN ('manual', 'auto')),
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS search_misses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    normalized TEXT UNIQUE NOT NULL,
    count INTEGER NOT NULL DEFAULT 1 CHECK(count >= 1),
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'resolved', 'ignored')),
    last_happened INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
CREATE INDEX IF NOT EXISTS idx_articles_featured ON articles(featured, updated_at);
CREATE INDEX IF NOT EXISTS idx_synonym_rules_enabled ON synonym_rules(enabled);
CREATE INDEX IF NOT EXISTS idx_synonym_rules_trigger ON synonym_rules(trigger_phrase);
CREATE INDEX IF NOT EXISTS idx_search_misses_count ON search_misses(count);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "quiz question bank, sessions, answers, stats",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS quiz_questions (
    qid TEXT PRIMARY KEY,
    prompt TEXT NOT NULL,
    choices TEXT NOT NULL,
    correct_index INTEGER NOT NULL,
    explanation TEXT,
    category TEXT,
    difficulty TEXT,
    tags TEXT,
    is_published INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_sessions (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    recent_qids TEXT NOT NULL DEFAULT '[]',
    current_qid TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(client_id, mode)
);

CREATE TABLE IF NOT EXISTS quiz_answers (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES quiz_sessions(id),
    qid TEXT NOT NULL,
    selected_index INTEGER NOT NULL,
    is_correct INTEGER NOT NULL,
    answered_at INTEGER NOT NULL,
    category TEXT,
    difficulty TEXT
);

CREATE TABLE IF NOT EXISTS quiz_stats (
    client_id TEXT PRIMARY KEY,
    total INTEGER NOT NULL DEFAULT 0,
    correct INTEGER NOT NULL DEFAULT 0,
    streak INTEGER NOT NULL DEFAULT 0,
    daily_count INTEGER NOT NULL DEFAULT 0,
    last_answered_day TEXT,
    last_answered_at INTEGER,
    updated_at INTEGER NOT NULL,
    CHECK(correct <= total)
);

CREATE INDEX IF NOT EXISTS idx_quiz_questions_published ON quiz_questions(is_published);
CREATE INDEX IF NOT EXISTS idx_quiz_questions_category ON quiz_questions(category);
CREATE INDEX IF NOT EXISTS idx_quiz_answers_client ON quiz_answers(client_id, answered_at);
CREATE INDEX IF NOT EXISTS idx_quiz_answers_session ON quiz_answers(session_id, answered_at);
CREATE INDEX IF NOT EXISTS idx_quiz_answers_qid ON quiz_answers(qid);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
