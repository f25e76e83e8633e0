package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/nerrad567/litemodel/internal/query"
	"github.com/nerrad567/litemodel/internal/txn"
)

// Bulk operations run as one unit of work. Every row is built and validated
// before the first statement is sent; a failing row rolls back the whole
// batch and is reported as a *BulkError carrying its index.

// BulkInsert inserts recs in one transaction. Every record must supply the
// same columns. It returns the number of rows inserted.
func (m *Model) BulkInsert(ctx context.Context, recs []Record) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	batch, err := query.BuildBulkInsert(t, recs)
	if err != nil {
		return 0, m.bulkError(OpInsert, err)
	}

	start := time.Now()
	n, err := m.write(ctx, OpInsert, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		stmt, err := tx.Prepare(ctx, batch.SQL)
		if err != nil {
			return 0, m.dbError("bulk insert", err)
		}
		defer stmt.Close() //nolint:errcheck // Statement is scoped to this batch

		for i, args := range batch.Rows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, &BulkError{Op: OpInsert, Table: m.name, Index: i, Err: m.dbError("insert", err)}
			}
		}
		return int64(len(batch.Rows)), nil
	})
	m.observe("bulk_insert", start, n, err)
	if err != nil {
		m.deps.Logger.Warn("bulk insert rolled back", "table", m.name, "rows", len(recs), "error", err)
		return 0, err
	}
	m.deps.Logger.Debug("bulk insert committed", "table", m.name, "rows", n)
	return n, nil
}

// BulkUpdate updates one row per record in one transaction. Each record
// carries the key under keyCol (the primary key when empty) plus the
// columns to change. It returns the total number of rows affected.
func (m *Model) BulkUpdate(ctx context.Context, recs []Record, keyCol string) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	key, err := keyColumn(t, keyCol)
	if err != nil {
		return 0, err
	}

	stmts := make([]query.Statement, 0, len(recs))
	for i, rec := range recs {
		keyVal, ok := rec[key]
		if !ok || keyVal == nil {
			return 0, &BulkError{Op: OpUpdate, Table: m.name, Index: i, Err: fmt.Errorf("%w: column %q", query.ErrNullKey, key)}
		}
		changes := maps.Clone(rec)
		delete(changes, key)
		stmt, err := query.BuildUpdate(t, key, keyVal, changes)
		if err != nil {
			return 0, &BulkError{Op: OpUpdate, Table: m.name, Index: i, Err: err}
		}
		stmts = append(stmts, stmt)
	}
	return m.runBatch(ctx, OpUpdate, stmts)
}

// BulkDelete deletes the rows whose keyCol (the primary key when empty)
// matches one of keys, in one transaction. It returns the number of rows
// deleted.
func (m *Model) BulkDelete(ctx context.Context, keys []any, keyCol string) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	key, err := keyColumn(t, keyCol)
	if err != nil {
		return 0, err
	}

	stmts := make([]query.Statement, 0, len(keys))
	for i, keyVal := range keys {
		stmt, err := query.BuildDelete(t, key, keyVal)
		if err != nil {
			return 0, &BulkError{Op: OpDelete, Table: m.name, Index: i, Err: err}
		}
		stmts = append(stmts, stmt)
	}
	return m.runBatch(ctx, OpDelete, stmts)
}

// runBatch executes stmts in order inside one write.
func (m *Model) runBatch(ctx context.Context, op string, stmts []query.Statement) (int64, error) {
	if len(stmts) == 0 {
		return 0, nil
	}

	start := time.Now()
	n, err := m.write(ctx, op, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		var total int64
		for i, stmt := range stmts {
			res, err := tx.Exec(ctx, stmt.SQL, stmt.Args...)
			if err != nil {
				return 0, &BulkError{Op: op, Table: m.name, Index: i, Err: m.dbError(op, err)}
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return 0, &BulkError{Op: op, Table: m.name, Index: i, Err: m.dbError(op, err)}
			}
			total += affected
		}
		return total, nil
	})
	m.observe("bulk_"+op, start, n, err)
	if err != nil {
		m.deps.Logger.Warn("bulk "+op+" rolled back", "table", m.name, "rows", len(stmts), "error", err)
		return 0, err
	}
	m.deps.Logger.Debug("bulk "+op+" committed", "table", m.name, "rows", n)
	return n, nil
}

// bulkError attributes a builder failure to its row when the builder
// reported one.
func (m *Model) bulkError(op string, err error) error {
	var rowErr *query.RowError
	if errors.As(err, &rowErr) {
		return &BulkError{Op: op, Table: m.name, Index: rowErr.Index, Err: rowErr.Err}
	}
	return err
}
