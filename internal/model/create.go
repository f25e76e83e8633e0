package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
	"github.com/nerrad567/litemodel/internal/schema"
	"github.com/nerrad567/litemodel/internal/txn"
)

// Create creates the table and its indexes.
//
// Calling Create on a table that already exists is not an error as long as
// the stored columns match the schema (names, declared types, NOT NULL and
// primary key); missing indexes are added. A mismatch fails with
// ErrSchemaConflict and leaves the table untouched. After a successful
// Create the schema is frozen and data operations are allowed.
func (m *Model) Create(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.schema
	if err := t.Validate(); err != nil {
		return err
	}
	// Render everything before touching the engine.
	createSQL, err := schema.CreateTableSQL(t)
	if err != nil {
		return err
	}
	indexSQL := make([]string, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		stmt, err := schema.CreateIndexSQL(t.Name, idx)
		if err != nil {
			return err
		}
		indexSQL = append(indexSQL, stmt)
	}

	start := time.Now()
	created := false
	_, err = m.write(ctx, OpCreate, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		exists, err := database.TableExists(ctx, tx, t.Name)
		if err != nil {
			return 0, m.dbError("create", err)
		}
		if exists {
			if err := m.checkExisting(ctx, tx, t); err != nil {
				return 0, err
			}
		} else {
			if _, err := tx.Exec(ctx, createSQL); err != nil {
				return 0, m.dbError("create", err)
			}
			created = true
		}
		for _, stmt := range indexSQL {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return 0, m.dbError("create index", err)
			}
		}
		return 0, nil
	})
	m.observe(OpCreate, start, 0, err)
	if err != nil {
		return err
	}

	m.frozen = true
	m.created = true
	if created {
		m.deps.Logger.Info("table created", "table", t.Name, "columns", len(t.Columns), "indexes", len(t.Indexes))
	} else {
		m.deps.Logger.Debug("table already present", "table", t.Name)
	}
	if m.deps.Registry != nil {
		m.deps.Registry.Register(m)
	}
	return nil
}

// checkExisting compares the stored table with the schema.
func (m *Model) checkExisting(ctx context.Context, q database.Queryer, t *schema.TableSchema) error {
	stored, err := database.TableColumns(ctx, q, t.Name)
	if err != nil {
		return m.dbError("create", err)
	}
	if len(stored) != len(t.Columns) {
		return fmt.Errorf("%w: %q has %d columns, schema has %d", ErrSchemaConflict, t.Name, len(stored), len(t.Columns))
	}
	for i, col := range t.Columns {
		got := stored[i]
		switch {
		case got.Name != col.Name:
			return fmt.Errorf("%w: %q column %d is %q, schema has %q", ErrSchemaConflict, t.Name, i, got.Name, col.Name)
		case !strings.EqualFold(got.Type, col.DeclaredType()):
			return fmt.Errorf("%w: %q.%q is %s, schema has %s", ErrSchemaConflict, t.Name, col.Name, got.Type, col.DeclaredType())
		case got.NotNull != col.DeclaredNotNull():
			return fmt.Errorf("%w: %q.%q nullability differs", ErrSchemaConflict, t.Name, col.Name)
		case got.PrimaryKey != col.PrimaryKey:
			return fmt.Errorf("%w: %q.%q primary key differs", ErrSchemaConflict, t.Name, col.Name)
		}
	}
	return nil
}

// Drop drops the table. The model keeps its schema and can be created again.
func (m *Model) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt, err := schema.DropTableSQL(m.schema.Name)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = m.write(ctx, OpDrop, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, m.dbError("drop", err)
		}
		return 0, nil
	})
	m.observe(OpDrop, start, 0, err)
	if err != nil {
		return err
	}

	m.created = false
	if m.deps.Registry != nil {
		m.deps.Registry.Unregister(m)
	}
	m.deps.Logger.Info("table dropped", "table", m.name)
	return nil
}

const opDropIndex = "drop_index"

// DropIndex drops one of the schema's indexes and removes it from the schema.
func (m *Model) DropIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return fmt.Errorf("%w: %q", ErrNotCreated, m.name)
	}
	if _, ok := m.schema.Index(name); !ok {
		return fmt.Errorf("%w: %q on %q", ErrUnknownIndex, name, m.name)
	}

	stmt, err := schema.DropIndexSQL(name)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = m.write(ctx, opDropIndex, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, m.dbError("drop index", err)
		}
		return 0, nil
	})
	m.observe(opDropIndex, start, 0, err)
	if err != nil {
		return err
	}

	// Readers may hold the old schema; publish a new one.
	next := m.schema.Clone()
	kept := next.Indexes[:0]
	for _, idx := range next.Indexes {
		if idx.Name != name {
			kept = append(kept, idx)
		}
	}
	next.Indexes = kept
	m.schema = next
	return nil
}
