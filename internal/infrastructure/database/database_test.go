package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestOpen verifies engine establishment.
func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		e, err := Open(Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer e.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

		e, err := Open(Config{Path: dbPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer e.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("returns path", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		e, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer e.Close() //nolint:errcheck // Test cleanup

		if e.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", e.Path(), dbPath)
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

// TestClose verifies graceful shutdown.
func TestClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	e.db = nil
	if err := e.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

// TestConnExec verifies statement execution on a session.
func TestConnExec(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	_, err := conn.Exec(ctx, `
		CREATE TABLE test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("Exec() CREATE error = %v", err)
	}

	result, err := conn.Exec(ctx, "INSERT INTO test_table (name) VALUES (?)", "test")
	if err != nil {
		t.Fatalf("Exec() INSERT error = %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId() error = %v", err)
	}
	if id != 1 {
		t.Errorf("LastInsertId() = %v, want 1", id)
	}
}

// TestConnCommit verifies a committed transaction is visible to other sessions.
func TestConnCommit(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	if _, err := conn.Exec(ctx, "CREATE TABLE tx_commit_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !conn.InTx() {
		t.Fatal("InTx() = false after Begin")
	}
	if _, err := conn.Exec(ctx, "INSERT INTO tx_commit_test (value) VALUES (?)", "committed"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	if err := conn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if conn.InTx() {
		t.Error("InTx() = true after Commit")
	}

	other := connect(t, e)
	var count int
	if err := other.QueryRow(ctx, "SELECT COUNT(*) FROM tx_commit_test WHERE value = ?", "committed").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

// TestConnRollback verifies transaction rollback.
func TestConnRollback(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	if _, err := conn.Exec(ctx, "CREATE TABLE tx_rollback_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := conn.Exec(ctx, "INSERT INTO tx_rollback_test (value) VALUES (?)", "rolled_back"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	if err := conn.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM tx_rollback_test WHERE value = ?", "rolled_back").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows, got %d", count)
	}
}

// TestConnTxState verifies transaction state errors on a session.
func TestConnTxState(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	if err := conn.Commit(); !errors.Is(err, ErrNoTx) {
		t.Errorf("Commit() without tx error = %v, want ErrNoTx", err)
	}
	if err := conn.Rollback(); !errors.Is(err, ErrNoTx) {
		t.Errorf("Rollback() without tx error = %v, want ErrNoTx", err)
	}

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := conn.Begin(ctx); !errors.Is(err, ErrTxActive) {
		t.Errorf("second Begin() error = %v, want ErrTxActive", err)
	}
	if err := conn.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
}

// TestConnClose verifies a closed session refuses work.
func TestConnClose(t *testing.T) {
	e := openTestEngine(t)
	conn, err := e.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx := context.Background()

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if conn.InTx() {
		t.Error("InTx() = true after Close")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT 1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Exec() after Close error = %v, want ErrSessionClosed", err)
	}
	if err := conn.Ping(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Ping() after Close error = %v, want ErrSessionClosed", err)
	}
}

// TestTableColumns verifies PRAGMA introspection.
func TestTableColumns(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	_, err := conn.Exec(ctx, `CREATE TABLE "people" (
		"id" INTEGER PRIMARY KEY AUTOINCREMENT,
		"name" VARCHAR(40) NOT NULL,
		"born" DATE,
		"score" REAL DEFAULT 1.5
	)`)
	if err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	exists, err := TableExists(ctx, conn, "people")
	if err != nil || !exists {
		t.Fatalf("TableExists(people) = %v, %v", exists, err)
	}
	exists, err = TableExists(ctx, conn, "ghosts")
	if err != nil || exists {
		t.Fatalf("TableExists(ghosts) = %v, %v", exists, err)
	}

	cols, err := TableColumns(ctx, conn, "people")
	if err != nil {
		t.Fatalf("TableColumns() error = %v", err)
	}

	want := []ColumnInfo{
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "name", Type: "VARCHAR(40)", NotNull: true},
		{Name: "born", Type: "DATE"},
		{Name: "score", Type: "REAL"},
	}
	if len(cols) != len(want) {
		t.Fatalf("TableColumns() returned %d columns, want %d", len(cols), len(want))
	}
	for i, w := range want {
		got := cols[i]
		if got.Name != w.Name || got.Type != w.Type || got.NotNull != w.NotNull || got.PrimaryKey != w.PrimaryKey {
			t.Errorf("column %d = %+v, want %+v", i, got, w)
		}
	}
	if !cols[3].Default.Valid || cols[3].Default.String != "1.5" {
		t.Errorf("score default = %+v, want 1.5", cols[3].Default)
	}

	missing, err := TableColumns(ctx, conn, "ghosts")
	if err != nil {
		t.Fatalf("TableColumns(ghosts) error = %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("TableColumns(ghosts) = %v, want none", missing)
	}
}

// TestIsConstraintError verifies engine constraint failures are recognised.
func TestIsConstraintError(t *testing.T) {
	e := openTestEngine(t)
	conn := connect(t, e)
	ctx := context.Background()

	if _, err := conn.Exec(ctx, "CREATE TABLE u (email TEXT UNIQUE NOT NULL)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}
	if _, err := conn.Exec(ctx, "INSERT INTO u (email) VALUES (?)", "a@b.c"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}

	_, err := conn.Exec(ctx, "INSERT INTO u (email) VALUES (?)", "a@b.c")
	if !IsConstraintError(err) {
		t.Errorf("duplicate insert: IsConstraintError(%v) = false", err)
	}

	_, err = conn.Exec(ctx, "INSERT INTO nowhere (x) VALUES (1)")
	if err == nil || IsConstraintError(err) {
		t.Errorf("missing table: IsConstraintError(%v) = true", err)
	}
	if IsConstraintError(nil) {
		t.Error("IsConstraintError(nil) = true")
	}
}

// openTestEngine creates a temporary engine for testing.
func openTestEngine(t *testing.T) *Engine {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	e, err := Open(Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		e.Close() //nolint:errcheck // Test cleanup
	})
	return e
}

// connect opens a session that is closed when the test ends.
func connect(t *testing.T, e *Engine) *Conn {
	t.Helper()

	conn, err := e.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		conn.Close() //nolint:errcheck // Test cleanup
	})
	return conn
}
