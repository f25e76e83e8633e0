package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxLifetime bounds how long database/sql keeps a physical handle.
	// Sessions held by the litemodel pool are not affected until released.
	connMaxLifetime = time.Hour
)

// Engine is the embedded storage engine: one SQLite file opened through
// database/sql. Sessions are handed out with Connect and pooled by the
// caller; the engine keeps no idle handles of its own.
type Engine struct {
	db   *sql.DB
	path string
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// Recommended: true (allows concurrent reads during writes).
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors when several sessions write.
	BusyTimeout int `yaml:"busy_timeout"`
}

// Open opens the storage engine with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode, busy timeout and foreign key enforcement
//  4. Sets appropriate file permissions (0600)
//  5. Verifies the connection with a ping
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *Engine: Opened engine
//   - error: If connection or configuration fails
func Open(cfg Config) (*Engine, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("opening database: path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Sessions are pooled above this layer, so database/sql must not keep
	// released handles around: a closed *sql.Conn closes its physical handle.
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	e := &Engine{
		db:   sqlDB,
		path: cfg.Path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may not exist until the first write

	return e, nil
}

// Connect opens a dedicated session on the engine.
//
// The session owns one physical SQLite handle until it is closed, so a
// transaction begun on it sees every statement issued through it.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - *Conn: Open session
//   - error: If the engine cannot hand out a handle
func (e *Engine) Connect(ctx context.Context) (*Conn, error) {
	c, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Close closes the engine. Sessions still open are closed by database/sql
// as they are released.
//
// Returns:
//   - error: If closing fails
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (e *Engine) Path() string {
	return e.path
}

// Stats returns database/sql handle statistics.
func (e *Engine) Stats() sql.DBStats {
	return e.db.Stats()
}
