package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	var version string
	if err := database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != "2" {
		t.Fatalf("unexpected schema version: %s", version)
	}

	var name string
	if err := database.Conn().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_tasks_status'`).Scan(&name); err != nil {
		t.Fatalf("expected status index: %v", err)
	}
}

func TestOpenMigratesVersionOneAndKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")

	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed: %v", err)
	}
	stmts := []string{
		`CREATE TABLE schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`INSERT INTO schema_meta (key, value) VALUES ('schema_version', '1')`,
		`CREATE TABLE tasks (id INTEGER PRIMARY KEY AUTOINCREMENT, source TEXT NOT NULL, chat_id INTEGER NOT NULL, message_id INTEGER NOT NULL, sender TEXT, content TEXT NOT NULL, detected_at TEXT NOT NULL, completed_at TEXT, status TEXT NOT NULL, tags TEXT NOT NULL DEFAULT '')`,
		`INSERT INTO tasks (source, chat_id, message_id, sender, content, detected_at, status) VALUES ('telegram', 1, 2, 'a', 'b', '2026-01-01T00:00:00.000000Z', 'new')`,
	}
	for _, stmt := range stmts {
		if _, err := seed.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	seed.Close()

	database := openWithin(t, path, 5*time.Second)
	defer database.Close()

	var version string
	if err := database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != "2" {
		t.Fatalf("expected migration to version 2, got %s", version)
	}

	var count int
	if err := database.Conn().QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected seeded row to survive migration, got %d", count)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	foundBackup := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".migration-") {
			foundBackup = true
		}
	}
	if !foundBackup {
		t.Fatal("expected migration backup file")
	}
}

func TestOpenCurrentSchemaSkipsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")

	first := openWithin(t, path, 5*time.Second)
	first.Close()
	second := openWithin(t, path, 5*time.Second)
	second.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".migration-") {
			t.Fatalf("unexpected backup %s for an up to date store", e.Name())
		}
	}
}

// openWithin fails the test instead of hanging when Open blocks.
func openWithin(t *testing.T, path string, limit time.Duration) *DB {
	t.Helper()
	type result struct {
		db  *DB
		err error
	}
	done := make(chan result, 1)
	go func() {
		database, err := Open(path)
		done <- result{database, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("open: %v", r.err)
		}
		return r.db
	case <-time.After(limit):
		t.Fatalf("open did not return within %s", limit)
		return nil
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed: %v", err)
	}
	if _, err := seed.Exec(`CREATE TABLE schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := seed.Exec(`INSERT INTO schema_meta (key, value) VALUES ('schema_version', '99')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seed.Close()

	_, err = Open(path)
	if err == nil || !strings.Contains(err.Error(), "newer") {
		t.Fatalf("expected newer schema error, got: %v", err)
	}
}

func TestOpenReturnsLockErrorWhenSchemaLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	lockedConn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open lock connection: %v", err)
	}
	defer lockedConn.Close()
	lockedConn.SetMaxOpenConns(1)

	if _, err := lockedConn.Exec(`CREATE TABLE IF NOT EXISTS lock_probe(id INTEGER PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("create lock table: %v", err)
	}
	if _, err := lockedConn.Exec(`BEGIN EXCLUSIVE`); err != nil {
		t.Fatalf("acquire exclusive lock: %v", err)
	}
	defer func() {
		_, _ = lockedConn.Exec(`ROLLBACK`)
	}()
	if _, err := lockedConn.Exec(`INSERT INTO lock_probe(value) VALUES('hold')`); err != nil {
		t.Fatalf("hold write lock: %v", err)
	}

	_, err = Open(path)
	if err == nil {
		t.Fatal("expected lock error, got nil")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "locked") {
		t.Fatalf("expected lock error, got: %v", err)
	}
}
