package model

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
	"github.com/nerrad567/litemodel/internal/query"
	"github.com/nerrad567/litemodel/internal/schema"
	"github.com/nerrad567/litemodel/internal/txn"
)

// reader returns where a read should run: the transaction carried by ctx,
// or a session borrowed from the pool. release must be called once.
func (m *Model) reader(ctx context.Context) (q database.Queryer, release func(), err error) {
	if tx := txn.FromContext(ctx); tx != nil && tx.State() == txn.StateActive {
		return tx, func() {}, nil
	}

	p := m.deps.Tx.Pool()
	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := p.Release(s); err != nil {
			m.deps.Logger.Error("releasing read session", "table", m.name, "error", err)
		}
	}, nil
}

// Insert inserts one record in its own transaction (or the one carried by
// ctx) and returns the row's generated key. For an integer primary key this
// is the key itself; for other tables it is the engine's rowid.
func (m *Model) Insert(ctx context.Context, rec Record) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildInsert(t, rec)
	if err != nil {
		return 0, err
	}

	var id int64
	start := time.Now()
	n, err := m.write(ctx, OpInsert, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		res, err := tx.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return 0, m.dbError("insert", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, m.dbError("insert", err)
		}
		return 1, nil
	})
	m.observe(OpInsert, start, n, err)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Filter runs a SELECT over every column and returns a cursor over the
// matching rows. With no nodes it returns every row.
func (m *Model) Filter(ctx context.Context, nodes ...query.Node) (*Cursor, error) {
	t, err := m.published()
	if err != nil {
		return nil, err
	}
	stmt, err := query.BuildSelect(t, nodes...)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, t, stmt)
}

// All returns a cursor over every row.
func (m *Model) All(ctx context.Context) (*Cursor, error) {
	return m.Filter(ctx)
}

func (m *Model) open(ctx context.Context, t *schema.TableSchema, stmt query.Statement) (*Cursor, error) {
	q, release, err := m.reader(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		release()
		err = m.dbError("filter", err)
		m.observe("select", start, 0, err)
		return nil, err
	}
	return &Cursor{
		model:   m,
		columns: t.Columns,
		rows:    rows,
		release: release,
		start:   start,
	}, nil
}

// Get returns the row whose primary key equals key.
//
// Returns:
//   - Record: The row
//   - error: ErrNotFound, ErrNoPrimaryKey, or a database error
func (m *Model) Get(ctx context.Context, key any) (Record, error) {
	t, err := m.published()
	if err != nil {
		return nil, err
	}
	pk, err := keyColumn(t, "")
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: column %q", query.ErrNullKey, pk)
	}

	cur, err := m.Filter(ctx, query.Equals(pk, key), query.Limit(1))
	if err != nil {
		return nil, err
	}
	recs, err := cur.Collect()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s.%s = %v", ErrNotFound, m.name, pk, key)
	}
	return recs[0], nil
}

// Count returns the number of rows matching nodes.
func (m *Model) Count(ctx context.Context, nodes ...query.Node) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildCount(t, nodes...)
	if err != nil {
		return 0, err
	}

	var n int64
	err = m.scalar(ctx, "count", stmt, func(found bool, scan func(...any) error) error {
		if !found {
			return nil
		}
		return scan(&n)
	})
	return n, err
}

// Exists reports whether any row matches nodes.
func (m *Model) Exists(ctx context.Context, nodes ...query.Node) (bool, error) {
	t, err := m.published()
	if err != nil {
		return false, err
	}
	stmt, err := query.BuildExists(t, nodes...)
	if err != nil {
		return false, err
	}

	var exists bool
	err = m.scalar(ctx, "exists", stmt, func(found bool, _ func(...any) error) error {
		exists = found
		return nil
	})
	return exists, err
}

// scalar runs a single-row query and hands the first row to read.
func (m *Model) scalar(ctx context.Context, op string, stmt query.Statement, read func(found bool, scan func(...any) error) error) error {
	q, release, err := m.reader(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		err = m.dbError(op, err)
		m.observe(op, start, 0, err)
		return err
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	found := rows.Next()
	if err := read(found, rows.Scan); err != nil {
		err = m.dbError(op, err)
		m.observe(op, start, 0, err)
		return err
	}
	if err := rows.Err(); err != nil {
		err = m.dbError(op, err)
		m.observe(op, start, 0, err)
		return err
	}
	m.observe(op, start, 1, nil)
	return nil
}

// GetOrCreate returns the first row matching every column of match,
// inserting match merged with defaults when there is none. Lookup and
// insert run in one transaction.
//
// Returns:
//   - Record: The found or created row
//   - bool: true when the row was created
//   - error: Validation or database error
func (m *Model) GetOrCreate(ctx context.Context, match, defaults Record) (Record, bool, error) {
	t, err := m.published()
	if err != nil {
		return nil, false, err
	}

	sel, err := query.BuildSelect(t, append(query.Where(match), query.Limit(1))...)
	if err != nil {
		return nil, false, err
	}
	fields := make(Record, len(match)+len(defaults))
	maps.Copy(fields, defaults)
	maps.Copy(fields, match)
	ins, err := query.BuildInsert(t, fields)
	if err != nil {
		return nil, false, err
	}

	var (
		rec     Record
		created bool
	)
	start := time.Now()
	n, err := m.write(ctx, OpInsert, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		found, err := m.selectOne(ctx, tx, t, sel)
		if err != nil || found != nil {
			rec = found
			return 0, err
		}
		if _, err := tx.Exec(ctx, ins.SQL, ins.Args...); err != nil {
			return 0, m.dbError("insert", err)
		}
		if rec, err = m.selectOne(ctx, tx, t, sel); err != nil {
			return 0, err
		}
		created = true
		return 1, nil
	})
	m.observe(OpInsert, start, n, err)
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// selectOne returns the first row of stmt, or nil.
func (m *Model) selectOne(ctx context.Context, q database.Queryer, t *schema.TableSchema, stmt query.Statement) (Record, error) {
	rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, m.dbError("filter", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	if !rows.Next() {
		return nil, m.dbError("filter", rows.Err())
	}
	rec, err := scanRecord(rows, t.Columns)
	if err != nil {
		return nil, m.dbError("filter", err)
	}
	return rec, nil
}

// Update applies changes to the row whose primary key equals key and
// returns the number of rows affected (0 or 1).
func (m *Model) Update(ctx context.Context, key any, changes Record) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	pk, err := keyColumn(t, "")
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildUpdate(t, pk, key, changes)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, OpUpdate, stmt)
}

// UpdateWhere applies changes to every row matching nodes and returns the
// number of rows affected. At least one filter is required. It works on
// tables without a primary key.
func (m *Model) UpdateWhere(ctx context.Context, changes Record, nodes ...query.Node) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildUpdateWhere(t, changes, nodes...)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, OpUpdate, stmt)
}

// Delete deletes the row whose primary key equals key and returns the
// number of rows affected (0 or 1).
func (m *Model) Delete(ctx context.Context, key any) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	pk, err := keyColumn(t, "")
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildDelete(t, pk, key)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, OpDelete, stmt)
}

// DeleteWhere deletes every row matching nodes. At least one filter is
// required; use Clear to empty the table.
func (m *Model) DeleteWhere(ctx context.Context, nodes ...query.Node) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	stmt, err := query.BuildDeleteWhere(t, nodes...)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, OpDelete, stmt)
}

// Clear deletes every row.
func (m *Model) Clear(ctx context.Context) (int64, error) {
	t, err := m.published()
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, OpDelete, query.BuildClear(t))
}

// exec runs one mutating statement and returns the rows it affected.
func (m *Model) exec(ctx context.Context, op string, stmt query.Statement) (int64, error) {
	start := time.Now()
	n, err := m.write(ctx, op, func(ctx context.Context, tx *txn.Tx) (int64, error) {
		res, err := tx.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return 0, m.dbError(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, m.dbError(op, err)
		}
		return n, nil
	})
	m.observe(op, start, n, err)
	return n, err
}
