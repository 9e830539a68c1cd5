package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateFromVersionOne(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v1.db")

	// Simulate a database that only has the search tables.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	tx, err := raw.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := migrations[0].Up(tx); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := raw.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("stamp v1: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}

	var count int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='quiz_stats'",
	).Scan(&count); err != nil {
		t.Fatalf("checking quiz tables: %v", err)
	}
	if count != 1 {
		t.Error("expected quiz_stats to exist after upgrade")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}
