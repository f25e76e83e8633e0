package model

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/litemodel/internal/schema"
)

// Cursor iterates over the rows of one Filter call.
//
// It holds a pooled session (or the caller's transaction) until the rows are
// exhausted or Close is called, so always Close it:
//
//	cur, err := users.Filter(ctx, query.Equals("team", 3))
//	if err != nil {
//	    return err
//	}
//	defer cur.Close()
//	for cur.Next() {
//	    rec := cur.Record()
//	    ...
//	}
//	return cur.Err()
//
// A Cursor is not restartable; call Filter again to re-run the query.
type Cursor struct {
	model   *Model
	columns []schema.ColumnDefinition
	rows    *sql.Rows
	release func()
	start   time.Time

	rec   Record
	count int64
	err   error

	closeOnce sync.Once
}

// Next advances to the next row. It returns false when the rows are
// exhausted or an error occurred; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = c.model.dbError("filter", err)
		}
		c.finish()
		return false
	}

	rec, err := scanRecord(c.rows, c.columns)
	if err != nil {
		c.err = c.model.dbError("filter", err)
		c.finish()
		return false
	}
	c.rec = rec
	c.count++
	return true
}

// Record returns the current row.
func (c *Cursor) Record() Record {
	return c.rec
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor's resources. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.finish()
	return nil
}

// Collect reads every remaining row and closes the cursor.
func (c *Cursor) Collect() ([]Record, error) {
	defer c.Close() //nolint:errcheck // Close never fails

	var out []Record
	for c.Next() {
		out = append(out, c.rec)
	}
	return out, c.Err()
}

func (c *Cursor) finish() {
	c.closeOnce.Do(func() {
		if c.rows != nil {
			if err := c.rows.Close(); err != nil && c.err == nil {
				c.err = c.model.dbError("filter", err)
			}
		}
		if c.release != nil {
			c.release()
		}
		c.model.observe("select", c.start, c.count, c.err)
	})
}

// scanRecord reads the current row into a Record keyed by column name.
func scanRecord(rows *sql.Rows, columns []schema.ColumnDefinition) (Record, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	rec := make(Record, len(columns))
	for i, col := range columns {
		rec[col.Name] = normalizeScanned(values[i])
	}
	return rec, nil
}

// normalizeScanned maps driver values onto the types Record documents.
func normalizeScanned(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
