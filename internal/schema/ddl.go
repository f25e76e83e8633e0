package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// QuoteIdent double-quotes an identifier that has already passed ValidateIdentifier.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}

// QuoteIdents quotes and comma-joins a column list.
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// DeclaredType returns the SQL type a column is declared with.
func (c ColumnDefinition) DeclaredType() string {
	switch c.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return fmt.Sprintf("VARCHAR(%d)", c.MaxLength)
	case TypeDate:
		return "DATE"
	case TypeReal:
		return "REAL"
	}
	return strings.ToUpper(string(c.Type))
}

// DeclaredNotNull reports whether the column DDL carries NOT NULL.
// Auto-increment keys rely on INTEGER PRIMARY KEY and are never declared NOT NULL.
func (c ColumnDefinition) DeclaredNotNull() bool {
	return !c.Nullable && !c.AutoIncrement()
}

// columnSQL renders one column clause of CREATE TABLE.
func columnSQL(c ColumnDefinition) (string, error) {
	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.DeclaredType())

	switch {
	case c.AutoIncrement():
		b.WriteString(" PRIMARY KEY AUTOINCREMENT")
	case c.PrimaryKey:
		b.WriteString(" PRIMARY KEY NOT NULL")
	case c.DeclaredNotNull():
		b.WriteString(" NOT NULL")
	}

	if c.Default != nil {
		lit, err := defaultLiteral(NormalizeValue(c, c.Default))
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.Name, err)
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

// CreateTableSQL renders an idempotent CREATE TABLE for the schema.
//
// Columns keep insertion order, followed by UNIQUE and FOREIGN KEY clauses.
func CreateTableSQL(t *TableSchema) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	clauses := make([]string, 0, len(t.Columns)+len(t.Uniques)+len(t.ForeignKeys))
	for _, c := range t.Columns {
		clause, err := columnSQL(c)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	for _, u := range t.Uniques {
		clauses = append(clauses, "UNIQUE ("+QuoteIdents(u.Columns)+")")
	}
	for _, fk := range t.ForeignKeys {
		clauses = append(clauses, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
			QuoteIdent(fk.Column), QuoteIdent(fk.Ref.Table), QuoteIdent(fk.Ref.Column), fk.OnDelete))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdent(t.Name), strings.Join(clauses, ", ")), nil
}

// CreateIndexSQL renders an idempotent CREATE INDEX.
func CreateIndexSQL(table string, idx Index) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(idx.Name); err != nil {
		return "", err
	}
	if len(idx.Columns) == 0 {
		return "", ErrNoColumns
	}
	for _, c := range idx.Columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", err
		}
	}

	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, QuoteIdent(idx.Name), QuoteIdent(table), QuoteIdents(idx.Columns)), nil
}

// DropTableSQL renders DROP TABLE IF EXISTS.
func DropTableSQL(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + QuoteIdent(table), nil
}

// DropIndexSQL renders DROP INDEX IF EXISTS.
func DropIndexSQL(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return "DROP INDEX IF EXISTS " + QuoteIdent(name), nil
}

// defaultLiteral renders a column default. SQLite does not accept bound
// parameters in DDL, so defaults are the one place a literal is rendered;
// the value has already passed ValidateValue and NormalizeValue for its
// column, so a date default is stored in the same text as a bound date.
func defaultLiteral(v any) (string, error) {
	switch d := v.(type) {
	case int:
		return strconv.FormatInt(int64(d), 10), nil
	case int8:
		return strconv.FormatInt(int64(d), 10), nil
	case int16:
		return strconv.FormatInt(int64(d), 10), nil
	case int32:
		return strconv.FormatInt(int64(d), 10), nil
	case int64:
		return strconv.FormatInt(d, 10), nil
	case uint:
		return strconv.FormatUint(uint64(d), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(d), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(d), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(d), 10), nil
	case uint64:
		return strconv.FormatUint(d, 10), nil
	case float32:
		return strconv.FormatFloat(float64(d), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(d, 'g', -1, 64), nil
	case string:
		return quoteString(d), nil
	}
	return "", fmt.Errorf("%w: unsupported default %T", ErrInvalidValue, v)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
