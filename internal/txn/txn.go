package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
	"github.com/nerrad567/litemodel/internal/pool"
)

// State is the lifecycle state of a transaction.
type State int

// Transaction states. A Tx is Active from Begin until exactly one of
// Commit or Rollback moves it to a final state.
const (
	StateActive State = iota + 1
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is told how each transaction ended.
type Observer interface {
	ObserveTransaction(id string, outcome State, elapsed time.Duration)
}

// Manager begins transactions on sessions borrowed from a pool.
//
// Thread Safety:
//   - All methods are safe for concurrent use. A single Tx is not.
type Manager struct {
	pool     *pool.Pool
	logger   Logger
	observer Observer
}

// NewManager creates a transaction manager over p.
func NewManager(p *pool.Pool) *Manager {
	return &Manager{
		pool:   p,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver sets the transaction observer for the manager.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// Pool returns the pool sessions are borrowed from.
func (m *Manager) Pool() *pool.Pool {
	return m.pool
}

// Tx is one unit of work on a single pooled session.
type Tx struct {
	id      string
	mgr     *Manager
	session database.Session
	started time.Time

	mu       sync.Mutex
	state    State
	onCommit []func()
}

// Begin borrows a session and opens a transaction on it.
//
// Parameters:
//   - ctx: Context for the acquire and for the transaction's lifetime;
//     if it ends before Commit the engine rolls the transaction back
//
// Returns:
//   - *Tx: Active transaction; finish it with Commit or Rollback
//   - error: ErrNestedTransactionUnsupported, a pool error, or the engine's BEGIN error
func (m *Manager) Begin(ctx context.Context) (*Tx, error) {
	if outer := FromContext(ctx); outer != nil && outer.State() == StateActive {
		return nil, fmt.Errorf("%w: %s is active", ErrNestedTransactionUnsupported, outer.id)
	}

	s, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Begin(ctx); err != nil {
		m.pool.Release(s) //nolint:errcheck // Session was on loan to us
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	tx := &Tx{
		id:      uuid.NewString(),
		mgr:     m,
		session: s,
		started: time.Now(),
		state:   StateActive,
	}
	m.logger.Debug("transaction started", "tx_id", tx.id)
	return tx, nil
}

// Run executes fn inside a transaction.
//
// The transaction commits when fn returns nil. It rolls back when fn
// returns an error, when ctx ends before fn returns, or when fn panics (the
// panic is re-raised after the rollback). fn receives a context carrying
// the transaction; it must not call Commit or Rollback itself.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("rollback after panic failed", "tx_id", tx.id, "error", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(NewContext(ctx, tx), tx); err != nil {
		m.logger.Debug("rolling back transaction", "tx_id", tx.id, "error", err)
		return errors.Join(err, tx.rollbackIfActive())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.logger.Debug("rolling back cancelled transaction", "tx_id", tx.id)
		return errors.Join(ctxErr, tx.rollbackIfActive())
	}
	return tx.Commit()
}

// ID returns the transaction's unique identifier.
func (tx *Tx) ID() string {
	return tx.id
}

// State returns the transaction's lifecycle state.
func (tx *Tx) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// active returns the session when the transaction can still be used.
func (tx *Tx) active() (database.Session, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransactionAlreadyFinalized, tx.id, tx.state)
	}
	return tx.session, nil
}

// Exec executes a statement inside the transaction.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s, err := tx.active()
	if err != nil {
		return nil, err
	}
	return s.Exec(ctx, query, args...)
}

// Query runs a query inside the transaction. The caller must close the rows
// before finishing the transaction.
func (tx *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s, err := tx.active()
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, query, args...)
}

// Row is the result of QueryRow.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest. Errors from the transaction
// itself are reported here.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// QueryRow runs a query expected to return at most one row.
func (tx *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	s, err := tx.active()
	if err != nil {
		return &Row{err: err}
	}
	return &Row{row: s.QueryRow(ctx, query, args...)}
}

// Prepare creates a statement bound to the transaction. The caller must
// close it before finishing the transaction.
func (tx *Tx) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	s, err := tx.active()
	if err != nil {
		return nil, err
	}
	return s.Prepare(ctx, query)
}

// AfterCommit registers fn to run once the transaction has committed.
// Hooks are dropped if the transaction rolls back.
func (tx *Tx) AfterCommit(fn func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onCommit = append(tx.onCommit, fn)
}

// Commit commits the transaction and returns its session to the pool.
// A failed commit leaves the transaction rolled back.
func (tx *Tx) Commit() error {
	s, err := tx.finish()
	if err != nil {
		return err
	}

	commitErr := s.Commit()
	outcome := StateCommitted
	if commitErr != nil {
		outcome = StateRolledBack
		if s.InTx() {
			_ = s.Rollback() //nolint:errcheck // Commit error is the one reported
		}
		tx.mgr.logger.Warn("commit failed, transaction rolled back", "tx_id", tx.id, "error", commitErr)
	}
	tx.end(s, outcome, commitErr == nil)

	if commitErr != nil {
		return fmt.Errorf("committing %s: %w", tx.id, commitErr)
	}

	tx.mu.Lock()
	hooks := tx.onCommit
	tx.onCommit = nil
	tx.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Rollback aborts the transaction and returns its session to the pool.
func (tx *Tx) Rollback() error {
	s, err := tx.finish()
	if err != nil {
		return err
	}

	rbErr := s.Rollback()
	tx.end(s, StateRolledBack, rbErr == nil)

	// The engine already ended a transaction whose context was cancelled.
	if errors.Is(rbErr, sql.ErrTxDone) {
		rbErr = nil
	}

	if rbErr != nil {
		return fmt.Errorf("rolling back %s: %w", tx.id, rbErr)
	}
	return nil
}

func (tx *Tx) rollbackIfActive() error {
	if tx.State() != StateActive {
		return nil
	}
	return tx.Rollback()
}

// finish claims the right to finalize the transaction.
func (tx *Tx) finish() (database.Session, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransactionAlreadyFinalized, tx.id, tx.state)
	}
	// Any state other than Active blocks a second finalizer; end sets the real outcome.
	tx.state = StateRolledBack
	return tx.session, nil
}

// end records the outcome and returns the session exactly once. A session
// whose transaction did not finish cleanly is discarded, since the engine
// may have closed it underneath us.
func (tx *Tx) end(s database.Session, outcome State, clean bool) {
	tx.mu.Lock()
	tx.state = outcome
	tx.session = nil
	tx.mu.Unlock()

	giveBack := tx.mgr.pool.Release
	if !clean {
		giveBack = tx.mgr.pool.Discard
	}
	if err := giveBack(s); err != nil {
		tx.mgr.logger.Error("returning transaction session", "tx_id", tx.id, "error", err)
	}

	elapsed := time.Since(tx.started)
	tx.mgr.logger.Debug("transaction finished", "tx_id", tx.id, "outcome", outcome.String(), "elapsed", elapsed)
	if tx.mgr.observer != nil {
		tx.mgr.observer.ObserveTransaction(tx.id, outcome, elapsed)
	}
}

type ctxKey struct{}

// NewContext returns a context carrying tx.
func NewContext(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// FromContext returns the transaction carried by ctx, or nil.
func FromContext(ctx context.Context) *Tx {
	tx, _ := ctx.Value(ctxKey{}).(*Tx) //nolint:errcheck // Absent means no transaction
	return tx
}
