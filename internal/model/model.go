package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/litemodel/internal/query"
	"github.com/nerrad567/litemodel/internal/schema"
	"github.com/nerrad567/litemodel/internal/txn"
)

// Record maps column names to values for one row.
//
// Values read back from the engine are int64, float64, string, time.Time
// or nil.
type Record = query.Record

// Logger defines the logging interface used by models.
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

// Metrics is told about every statement a model runs.
type Metrics interface {
	ObserveStatement(table, op string, elapsed time.Duration, rows int64, err error)
}

// Change operations reported to a ChangePublisher.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpCreate = "create"
	OpDrop   = "drop"
)

// ChangeEvent describes a committed mutation of one table.
type ChangeEvent struct {
	Table string    `json:"table"`
	Op    string    `json:"op"`
	Rows  int64     `json:"rows"`
	TxID  string    `json:"tx_id"`
	Time  time.Time `json:"time"`
}

// ChangePublisher receives an event after each committed mutation.
// Publishing must not block for long; it runs on the caller's goroutine.
type ChangePublisher interface {
	PublishChange(ev ChangeEvent)
}

// Deps are the collaborators a Model uses. Tx is required.
type Deps struct {
	Tx       *txn.Manager
	Logger   Logger
	Metrics  Metrics
	Changes  ChangePublisher
	Registry *Registry
}

// Model maps one table to its schema and exposes CRUD and bulk operations.
//
// The schema is built with AddColumn and friends, then published by Create.
// After Create the schema is read-only and the model is safe for concurrent
// use.
type Model struct {
	name string
	deps Deps

	mu      sync.RWMutex
	schema  *schema.TableSchema
	frozen  bool
	created bool
}

// New creates a model for the named table.
//
// Parameters:
//   - name: Table name; must pass identifier validation
//   - deps: Collaborators; deps.Tx is required
//
// Returns:
//   - *Model: Model with an empty schema
//   - error: schema.ErrInvalidIdentifier for a bad name
func New(name string, deps Deps) (*Model, error) {
	if err := schema.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("model %q: transaction manager is required", name)
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Model{
		name:   name,
		deps:   deps,
		schema: &schema.TableSchema{Name: name},
	}, nil
}

// Name returns the table name.
func (m *Model) Name() string {
	return m.name
}

// Schema returns a copy of the table schema.
func (m *Model) Schema() *schema.TableSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema.Clone()
}

// ColumnOption adjusts a column passed to AddColumn.
type ColumnOption func(*schema.ColumnDefinition)

// PrimaryKey marks the column as the table's primary key.
// Integer primary keys are generated by the engine.
func PrimaryKey() ColumnOption {
	return func(c *schema.ColumnDefinition) { c.PrimaryKey = true }
}

// Nullable sets whether the column accepts NULL. Columns are nullable
// unless told otherwise.
func Nullable(nullable bool) ColumnOption {
	return func(c *schema.ColumnDefinition) { c.Nullable = nullable }
}

// MaxLength caps a text column at n characters.
func MaxLength(n int) ColumnOption {
	return func(c *schema.ColumnDefinition) { c.MaxLength = n }
}

// Default sets the value the engine stores when an insert omits the column.
func Default(v any) ColumnOption {
	return func(c *schema.ColumnDefinition) { c.Default = v }
}

// AddColumn appends a column to the schema.
//
// Text columns default to a max length of schema.DefaultMaxLength.
// The column is validated at once; a bad name or type is reported here,
// not at Create.
func (m *Model) AddColumn(name string, typ schema.ColumnType, opts ...ColumnOption) error {
	col := schema.ColumnDefinition{
		Name:     name,
		Type:     typ,
		Nullable: true,
	}
	if typ == schema.TypeText {
		col.MaxLength = schema.DefaultMaxLength
	}
	for _, opt := range opts {
		opt(&col)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return ErrSchemaFrozen
	}
	return m.schema.AddColumn(col)
}

// AddUniqueConstraint adds a table-level UNIQUE over columns.
func (m *Model) AddUniqueConstraint(columns ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return ErrSchemaFrozen
	}
	return m.schema.AddUnique(columns)
}

// AddForeignKey links column to target, given as "table(column)".
// onDelete is one of CASCADE, SET NULL, SET DEFAULT, RESTRICT or NO ACTION,
// in any case; empty means NO ACTION.
func (m *Model) AddForeignKey(column, target, onDelete string) error {
	ref, err := schema.ParseReference(target)
	if err != nil {
		return err
	}
	action := schema.NormalizeOnDelete(onDelete)
	if action == "" {
		action = schema.OnDeleteNoAction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return ErrSchemaFrozen
	}
	return m.schema.AddForeignKey(schema.ForeignKey{Column: column, Ref: ref, OnDelete: action})
}

// CreateIndex adds a named index over columns. It is created with the table.
func (m *Model) CreateIndex(name string, columns []string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return ErrSchemaFrozen
	}
	return m.schema.AddIndex(schema.Index{Name: name, Columns: columns, Unique: unique})
}

// published returns the schema for a data operation.
func (m *Model) published() (*schema.TableSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.created {
		return nil, fmt.Errorf("%w: %q", ErrNotCreated, m.name)
	}
	return m.schema, nil
}

// keyColumn resolves the column bulk and key operations match on.
// An empty name means the primary key.
func keyColumn(t *schema.TableSchema, name string) (string, error) {
	if name == "" {
		pk, ok := t.PrimaryKey()
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrNoPrimaryKey, t.Name)
		}
		return pk.Name, nil
	}
	if !t.HasColumn(name) {
		return "", fmt.Errorf("%w: %q in table %q", query.ErrUnknownColumn, name, t.Name)
	}
	return name, nil
}

// observe reports a statement to the metrics sink, if any.
func (m *Model) observe(op string, start time.Time, rows int64, err error) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveStatement(m.name, op, time.Since(start), rows, err)
	}
}

// write runs fn in the transaction carried by ctx, or in a new one.
// The change event is published only after the enclosing transaction commits.
func (m *Model) write(ctx context.Context, op string, fn func(ctx context.Context, tx *txn.Tx) (int64, error)) (int64, error) {
	var rows int64
	body := func(ctx context.Context, tx *txn.Tx) error {
		n, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		rows = n
		if m.deps.Changes != nil && (n > 0 || op == OpCreate || op == OpDrop) {
			ev := ChangeEvent{Table: m.name, Op: op, Rows: n, TxID: tx.ID()}
			tx.AfterCommit(func() {
				ev.Time = time.Now().UTC()
				m.deps.Changes.PublishChange(ev)
			})
		}
		return nil
	}

	if tx := txn.FromContext(ctx); tx != nil && tx.State() == txn.StateActive {
		if err := body(ctx, tx); err != nil {
			return 0, err
		}
		return rows, nil
	}
	if err := m.deps.Tx.Run(ctx, body); err != nil {
		return 0, err
	}
	return rows, nil
}
