package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Queryer runs a query. Sessions and transactions both satisfy it.
type Queryer interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnInfo is one row of PRAGMA table_info.
type ColumnInfo struct {
	Name       string
	Type       string // declared type, as written in CREATE TABLE
	NotNull    bool
	PrimaryKey bool
	Default    sql.NullString
}

// TableExists reports whether a table with the given name exists.
func TableExists(ctx context.Context, q Queryer, table string) (bool, error) {
	rows, err := q.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, fmt.Errorf("checking table %q: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("checking table %q: %w", table, err)
	}
	return found, nil
}

// TableColumns returns the stored column layout of a table in declaration
// order. A missing table yields no columns.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - q: Session or transaction to query on
//   - table: Table name
//
// Returns:
//   - []ColumnInfo: One entry per column
//   - error: If the pragma cannot be read
func TableColumns(ctx context.Context, q Queryer, table string) ([]ColumnInfo, error) {
	// PRAGMA arguments can't be bound, so the name is quoted.
	rows, err := q.Query(ctx, "PRAGMA table_info("+quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("reading columns of %q: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			info    ColumnInfo
			notNull int
			pk      int
		)
		if err := rows.Scan(&cid, &info.Name, &info.Type, &notNull, &info.Default, &pk); err != nil {
			return nil, fmt.Errorf("scanning columns of %q: %w", table, err)
		}
		info.NotNull = notNull != 0
		info.PrimaryKey = pk != 0
		cols = append(cols, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns of %q: %w", table, err)
	}
	return cols, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
