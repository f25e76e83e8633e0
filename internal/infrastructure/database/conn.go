package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Session is one physical connection to the engine.
//
// *Conn is the production implementation; the connection pool manages
// Sessions so that tests can substitute their own.
type Session interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Prepare(ctx context.Context, query string) (*sql.Stmt, error)
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
	InTx() bool
	Ping(ctx context.Context) error
	Close() error
}

// querier is the statement surface shared by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn is a dedicated session on the engine. While a transaction is open
// every statement runs inside it.
//
// A Conn is meant to be used by one goroutine at a time; Close may be
// called from another goroutine to force it shut.
type Conn struct {
	conn *sql.Conn

	mu     sync.Mutex
	tx     *sql.Tx
	closed bool
}

var _ Session = (*Conn)(nil)

// target returns the handle statements should run on.
func (c *Conn) target() (querier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrSessionClosed
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.conn, nil
}

// Exec executes a statement that doesn't return rows (INSERT, UPDATE, DELETE, DDL).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL statement with ? placeholders
//   - args: Arguments for placeholders
//
// Returns:
//   - sql.Result: Contains LastInsertId and RowsAffected
//   - error: If execution fails
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := c.target()
	if err != nil {
		return nil, err
	}
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Query executes a statement that returns rows. The caller must close the rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := c.target()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow executes a query that returns at most one row.
// On a closed session the error is deferred to Scan.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()

	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	// A closed *sql.Conn reports sql.ErrConnDone from Scan.
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Prepare creates a prepared statement on the session, bound to the open
// transaction when there is one. The caller must close the statement.
func (c *Conn) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	q, err := c.target()
	if err != nil {
		return nil, err
	}
	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	return stmt, nil
}

// Begin opens a transaction on the session.
//
// Returns:
//   - error: ErrTxActive if one is already open, or the engine's error
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	if c.tx != nil {
		return ErrTxActive
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction. The transaction is finished whether
// or not the commit succeeds; the driver rolls back a failed COMMIT.
func (c *Conn) Commit() error {
	tx, err := c.takeTx()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction.
func (c *Conn) Rollback() error {
	tx, err := c.takeTx()
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (c *Conn) takeTx() (*sql.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return nil, ErrNoTx
	}
	tx := c.tx
	c.tx = nil
	return tx, nil
}

// InTx reports whether a transaction is open on the session.
func (c *Conn) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Ping verifies the session's handle is still usable.
func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging session: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the session.
// Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()

	if tx != nil {
		_ = tx.Rollback() //nolint:errcheck // Session is going away either way
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return nil
}
