package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/litemodel/internal/schema"
)

// Record maps column names to values for one row.
type Record map[string]any

// Statement is statement text plus its positional parameters.
// Args line up one-to-one with the ? placeholders in SQL.
type Statement struct {
	SQL  string
	Args []any
}

// Batch is one prepared statement executed once per row.
type Batch struct {
	SQL     string
	Columns []string
	Rows    [][]any
}

// clauses collects the parts of a rendered condition tree.
type clauses struct {
	where   []string
	args    []any
	orderBy *OrderByNode
	limit   *int
	offset  *int
}

// compile walks the top level of a condition tree. Top-level filters are
// joined with AND; ordering and pagination may only appear here.
func compile(t *schema.TableSchema, nodes []Node) (*clauses, error) {
	c := &clauses{}
	for _, n := range nodes {
		switch v := n.(type) {
		case OrderByNode:
			if c.orderBy != nil {
				return nil, fmt.Errorf("%w: second ORDER BY on %q", ErrConflictingClause, v.Column)
			}
			if err := checkColumn(t, v.Column); err != nil {
				return nil, err
			}
			c.orderBy = &v
		case LimitNode:
			if c.limit != nil {
				return nil, fmt.Errorf("%w: second LIMIT", ErrConflictingClause)
			}
			if v.N < 0 {
				return nil, fmt.Errorf("%w: LIMIT %d", ErrInvalidRange, v.N)
			}
			c.limit = &v.N
		case OffsetNode:
			if c.offset != nil {
				return nil, fmt.Errorf("%w: second OFFSET", ErrConflictingClause)
			}
			if v.N < 0 {
				return nil, fmt.Errorf("%w: OFFSET %d", ErrInvalidRange, v.N)
			}
			c.offset = &v.N
		case AndNode:
			// Flatten: a top-level AND group is the same conjunction.
			for _, child := range v.Nodes {
				expr, args, err := predicate(t, child)
				if err != nil {
					return nil, err
				}
				c.where = append(c.where, expr)
				c.args = append(c.args, args...)
			}
		default:
			expr, args, err := predicate(t, n)
			if err != nil {
				return nil, err
			}
			c.where = append(c.where, expr)
			c.args = append(c.args, args...)
		}
	}
	return c, nil
}

// predicate renders a filter node depth-first.
func predicate(t *schema.TableSchema, n Node) (string, []any, error) {
	switch v := n.(type) {
	case EqualsNode:
		if err := checkColumn(t, v.Column); err != nil {
			return "", nil, err
		}
		if v.Value == nil {
			return schema.QuoteIdent(v.Column) + " IS NULL", nil, nil
		}
		col, _ := t.Column(v.Column)
		return schema.QuoteIdent(v.Column) + " = ?", []any{schema.NormalizeValue(col, v.Value)}, nil
	case LikeNode:
		if err := checkColumn(t, v.Column); err != nil {
			return "", nil, err
		}
		expr := schema.QuoteIdent(v.Column) + " LIKE ?"
		if v.Escaped {
			expr += ` ESCAPE '\'`
		}
		return expr, []any{v.Pattern}, nil
	case OrNode:
		return group(t, v.Nodes, " OR ")
	case AndNode:
		return group(t, v.Nodes, " AND ")
	case OrderByNode, LimitNode, OffsetNode:
		return "", nil, fmt.Errorf("%w: %T is only valid at the top level", ErrConflictingClause, n)
	case nil:
		return "", nil, fmt.Errorf("%w: nil", ErrUnknownNode)
	}
	return "", nil, fmt.Errorf("%w: %T", ErrUnknownNode, n)
}

// group renders a parenthesised boolean group.
func group(t *schema.TableSchema, nodes []Node, joiner string) (string, []any, error) {
	if len(nodes) == 0 {
		return "", nil, fmt.Errorf("%w: empty%sgroup", ErrEmptySet, strings.ToLower(joiner))
	}
	parts := make([]string, 0, len(nodes))
	var args []any
	for _, child := range nodes {
		expr, childArgs, err := predicate(t, child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func (c *clauses) whereSQL() string {
	if len(c.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.where, " AND ")
}

// tailSQL renders ORDER BY, LIMIT and OFFSET and appends their parameters.
func (c *clauses) tailSQL(args []any) (string, []any) {
	var b strings.Builder
	if c.orderBy != nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(schema.QuoteIdent(c.orderBy.Column))
		if c.orderBy.Descending {
			b.WriteString(" DESC")
		}
	}
	switch {
	case c.limit != nil:
		b.WriteString(" LIMIT ?")
		args = append(args, *c.limit)
	case c.offset != nil:
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		b.WriteString(" LIMIT -1")
	}
	if c.offset != nil {
		b.WriteString(" OFFSET ?")
		args = append(args, *c.offset)
	}
	return b.String(), args
}

// BuildSelect renders a SELECT of every schema column filtered by nodes.
func BuildSelect(t *schema.TableSchema, nodes ...Node) (Statement, error) {
	c, err := compile(t, nodes)
	if err != nil {
		return Statement{}, err
	}
	sql := "SELECT " + schema.QuoteIdents(t.ColumnNames()) + " FROM " + schema.QuoteIdent(t.Name) + c.whereSQL()
	tail, args := c.tailSQL(c.args)
	return Statement{SQL: sql + tail, Args: args}, nil
}

// BuildCount renders SELECT COUNT(*). Ordering and pagination nodes are
// validated but don't affect the count.
func BuildCount(t *schema.TableSchema, nodes ...Node) (Statement, error) {
	c, err := compile(t, nodes)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "SELECT COUNT(*) FROM " + schema.QuoteIdent(t.Name) + c.whereSQL(),
		Args: c.args,
	}, nil
}

// BuildExists renders a query returning one row when any row matches.
func BuildExists(t *schema.TableSchema, nodes ...Node) (Statement, error) {
	c, err := compile(t, nodes)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "SELECT 1 FROM " + schema.QuoteIdent(t.Name) + c.whereSQL() + " LIMIT 1",
		Args: c.args,
	}, nil
}

// BuildInsert renders an INSERT for one record. Values appear in schema
// column order; only supplied columns are listed.
func BuildInsert(t *schema.TableSchema, rec Record) (Statement, error) {
	if err := checkRecord(t, rec); err != nil {
		return Statement{}, err
	}

	columns, args, err := insertValues(t, rec)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: insertSQL(t, columns), Args: args}, nil
}

// BuildBulkInsert renders one prepared INSERT and the per-row parameters.
// Every record must supply the same set of columns.
func BuildBulkInsert(t *schema.TableSchema, recs []Record) (Batch, error) {
	if len(recs) == 0 {
		return Batch{}, fmt.Errorf("%w: no records", ErrEmptySet)
	}

	first := keySet(recs[0])
	var batch Batch
	for i, rec := range recs {
		if i > 0 && !sameKeys(first, rec) {
			return Batch{}, &RowError{Index: i, Err: fmt.Errorf("%w: expected columns %v", ErrSchemaMismatch, sortedKeys(recs[0]))}
		}
		if err := checkRecord(t, rec); err != nil {
			return Batch{}, &RowError{Index: i, Err: err}
		}
		columns, args, err := insertValues(t, rec)
		if err != nil {
			return Batch{}, &RowError{Index: i, Err: err}
		}
		if i == 0 {
			batch.SQL = insertSQL(t, columns)
			batch.Columns = columns
		}
		batch.Rows = append(batch.Rows, args)
	}
	return batch, nil
}

// BuildUpdate renders UPDATE ... SET ... WHERE keyColumn = ?.
// SET columns follow schema order.
func BuildUpdate(t *schema.TableSchema, keyColumn string, keyValue any, changes Record) (Statement, error) {
	key, err := checkKey(t, keyColumn, keyValue)
	if err != nil {
		return Statement{}, err
	}
	sets, args, err := setClause(t, changes)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "UPDATE " + schema.QuoteIdent(t.Name) + " SET " + sets + " WHERE " + schema.QuoteIdent(keyColumn) + " = ?",
		Args: append(args, key),
	}, nil
}

// BuildUpdateWhere renders a filtered UPDATE. An empty filter is refused.
func BuildUpdateWhere(t *schema.TableSchema, changes Record, nodes ...Node) (Statement, error) {
	c, err := compile(t, nodes)
	if err != nil {
		return Statement{}, err
	}
	if c.orderBy != nil || c.limit != nil || c.offset != nil {
		return Statement{}, fmt.Errorf("%w: ordering and pagination are not allowed in UPDATE", ErrConflictingClause)
	}
	if len(c.where) == 0 {
		return Statement{}, ErrEmptyFilter
	}
	sets, args, err := setClause(t, changes)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "UPDATE " + schema.QuoteIdent(t.Name) + " SET " + sets + c.whereSQL(),
		Args: append(args, c.args...),
	}, nil
}

// setClause validates changes and renders the SET list in schema order.
func setClause(t *schema.TableSchema, changes Record) (string, []any, error) {
	if len(changes) == 0 {
		return "", nil, ErrEmptyUpdate
	}
	if err := checkRecord(t, changes); err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(changes))
	args := make([]any, 0, len(changes)+1)
	for _, col := range t.Columns {
		v, ok := changes[col.Name]
		if !ok {
			continue
		}
		if err := schema.ValidateValue(col, v); err != nil {
			return "", nil, err
		}
		sets = append(sets, schema.QuoteIdent(col.Name)+" = ?")
		args = append(args, schema.NormalizeValue(col, v))
	}
	return strings.Join(sets, ", "), args, nil
}

// BuildDelete renders DELETE ... WHERE keyColumn = ?.
func BuildDelete(t *schema.TableSchema, keyColumn string, keyValue any) (Statement, error) {
	key, err := checkKey(t, keyColumn, keyValue)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "DELETE FROM " + schema.QuoteIdent(t.Name) + " WHERE " + schema.QuoteIdent(keyColumn) + " = ?",
		Args: []any{key},
	}, nil
}

// BuildDeleteWhere renders a filtered DELETE. An empty filter is refused.
func BuildDeleteWhere(t *schema.TableSchema, nodes ...Node) (Statement, error) {
	c, err := compile(t, nodes)
	if err != nil {
		return Statement{}, err
	}
	if c.orderBy != nil || c.limit != nil || c.offset != nil {
		return Statement{}, fmt.Errorf("%w: ordering and pagination are not allowed in DELETE", ErrConflictingClause)
	}
	if len(c.where) == 0 {
		return Statement{}, ErrEmptyFilter
	}
	return Statement{
		SQL:  "DELETE FROM " + schema.QuoteIdent(t.Name) + c.whereSQL(),
		Args: c.args,
	}, nil
}

// BuildClear renders an unfiltered DELETE.
func BuildClear(t *schema.TableSchema) Statement {
	return Statement{SQL: "DELETE FROM " + schema.QuoteIdent(t.Name)}
}

func insertSQL(t *schema.TableSchema, columns []string) string {
	if len(columns) == 0 {
		return "INSERT INTO " + schema.QuoteIdent(t.Name) + " DEFAULT VALUES"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return "INSERT INTO " + schema.QuoteIdent(t.Name) + " (" + schema.QuoteIdents(columns) + ") VALUES (" + placeholders + ")"
}

// insertValues validates a record and lists its columns and values in schema order.
func insertValues(t *schema.TableSchema, rec Record) ([]string, []any, error) {
	columns := make([]string, 0, len(rec))
	args := make([]any, 0, len(rec))
	for _, col := range t.Columns {
		v, ok := rec[col.Name]
		if !ok {
			if col.Required() {
				return nil, nil, fmt.Errorf("%w: column %q is required", schema.ErrNullConstraintViolation, col.Name)
			}
			continue
		}
		if err := schema.ValidateValue(col, v); err != nil {
			return nil, nil, err
		}
		columns = append(columns, col.Name)
		args = append(args, schema.NormalizeValue(col, v))
	}
	return columns, args, nil
}

// checkRecord rejects columns the table doesn't define. Keys are checked in
// sorted order so the reported column is stable.
func checkRecord(t *schema.TableSchema, rec Record) error {
	for _, name := range sortedKeys(rec) {
		if err := checkColumn(t, name); err != nil {
			return err
		}
	}
	return nil
}

func checkColumn(t *schema.TableSchema, name string) error {
	if !t.HasColumn(name) {
		return fmt.Errorf("%w: %q in table %q", ErrUnknownColumn, name, t.Name)
	}
	return nil
}

// checkKey returns the key value in its stored form.
func checkKey(t *schema.TableSchema, keyColumn string, keyValue any) (any, error) {
	if err := checkColumn(t, keyColumn); err != nil {
		return nil, err
	}
	if keyValue == nil {
		return nil, fmt.Errorf("%w: column %q", ErrNullKey, keyColumn)
	}
	col, _ := t.Column(keyColumn)
	return schema.NormalizeValue(col, keyValue), nil
}

func keySet(rec Record) map[string]struct{} {
	set := make(map[string]struct{}, len(rec))
	for k := range rec {
		set[k] = struct{}{}
	}
	return set
}

func sameKeys(set map[string]struct{}, rec Record) bool {
	if len(set) != len(rec) {
		return false
	}
	for k := range rec {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
