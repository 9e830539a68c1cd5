package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertSynonymRule creates an enabled rule. Trigger and adds are lowercased.
func (db *DB) InsertSynonymRule(ctx context.Context, trigger string, adds []string, source string) (int64, error) {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" {
		return 0, fmt.Errorf("synonym trigger is required")
	}
	if source != SourceManual && source != SourceAuto {
		return 0, fmt.Errorf("unknown synonym source %q", source)
	}

	clean := make([]string, 0, len(adds))
	for _, w := range adds {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			clean = append(clean, w)
		}
	}
	addsJSON, err := encodeList(clean)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO synonym_rules (trigger_phrase, adds, enabled, source, updated_at) VALUES (?, ?, 1, ?, ?)`,
		trigger, addsJSON, source, toMillis(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// EnabledSynonymRules returns the rules that participate in query expansion.
func (db *DB) EnabledSynonymRules(ctx context.Context) ([]SynonymRule, error) {
	return db.querySynonymRules(ctx,
		"SELECT id, trigger_phrase, adds, enabled, source, updated_at FROM synonym_rules WHERE enabled = 1 ORDER BY id")
}

// GetAllSynonymRules returns every rule, enabled or not.
func (db *DB) GetAllSynonymRules(ctx context.Context) ([]SynonymRule, error) {
	return db.querySynonymRules(ctx,
		"SELECT id, trigger_phrase, adds, enabled, source, updated_at FROM synonym_rules ORDER BY id")
}

// GetSynonymRule returns a single rule by ID, or nil.
func (db *DB) GetSynonymRule(ctx context.Context, ruleID int64) (*SynonymRule, error) {
	rules, err := db.querySynonymRules(ctx,
		"SELECT id, trigger_phrase, adds, enabled, source, updated_at FROM synonym_rules WHERE id = ?", ruleID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}

// ToggleSynonymRule flips the enabled flag of a rule.
func (db *DB) ToggleSynonymRule(ctx context.Context, ruleID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE synonym_rules SET enabled = NOT enabled, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), ruleID,
	)
	return err
}

// DeleteSynonymRule removes a rule.
func (db *DB) DeleteSynonymRule(ctx context.Context, ruleID int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM synonym_rules WHERE id = ?", ruleID)
	return err
}

func (db *DB) querySynonymRules(ctx context.Context, query string, args ...any) ([]SynonymRule, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []SynonymRule
	for rows.Next() {
		r, err := scanSynonymRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func scanSynonymRule(rows *sql.Rows) (*SynonymRule, error) {
	var r SynonymRule
	var addsJSON *string
	var enabled int
	var updated int64
	if err := rows.Scan(&r.ID, &r.Trigger, &addsJSON, &enabled, &r.Source, &updated); err != nil {
		return nil, err
	}
	r.Adds = decodeList(addsJSON)
	r.Enabled = enabled != 0
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}
