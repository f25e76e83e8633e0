package schema

import "slices"

// ColumnType is the logical type of a column.
type ColumnType string

// Recognised column types.
const (
	TypeInteger ColumnType = "integer"
	TypeText    ColumnType = "text"
	TypeDate    ColumnType = "date"
	TypeReal    ColumnType = "real"
)

// AllColumnTypes returns every recognised column type.
func AllColumnTypes() []ColumnType {
	return []ColumnType{TypeInteger, TypeText, TypeDate, TypeReal}
}

// DefaultMaxLength is the max length applied to text columns when none is given.
const DefaultMaxLength = 256

// On-delete actions accepted for foreign keys.
const (
	OnDeleteCascade    = "CASCADE"
	OnDeleteSetNull    = "SET NULL"
	OnDeleteSetDefault = "SET DEFAULT"
	OnDeleteRestrict   = "RESTRICT"
	OnDeleteNoAction   = "NO ACTION"
)

// AllOnDeleteActions returns every accepted on-delete action.
func AllOnDeleteActions() []string {
	return []string{OnDeleteCascade, OnDeleteSetNull, OnDeleteSetDefault, OnDeleteRestrict, OnDeleteNoAction}
}

// ColumnDefinition describes one column of a table.
type ColumnDefinition struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primary_key"`
	Nullable   bool       `json:"nullable"`

	// MaxLength caps text values, counted in characters. Ignored for other types.
	MaxLength int `json:"max_length,omitempty"`

	// Default is applied by the engine when an insert omits the column.
	Default any `json:"default,omitempty"`
}

// AutoIncrement reports whether the engine generates this column's value.
func (c ColumnDefinition) AutoIncrement() bool {
	return c.PrimaryKey && c.Type == TypeInteger
}

// Required reports whether an insert must supply a value for this column.
func (c ColumnDefinition) Required() bool {
	return !c.Nullable && c.Default == nil && !c.AutoIncrement()
}

// UniqueConstraint is a table-level UNIQUE over one or more columns.
type UniqueConstraint struct {
	Columns []string `json:"columns"`
}

// Reference is the target side of a foreign key.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ForeignKey links a local column to a column of another table.
type ForeignKey struct {
	Column   string    `json:"column"`
	Ref      Reference `json:"references"`
	OnDelete string    `json:"on_delete"`
}

// Index is a named secondary index.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the full definition of one table.
//
// Columns keep insertion order; that order is the column order in DDL and in
// generated statements.
type TableSchema struct {
	Name        string             `json:"name"`
	Columns     []ColumnDefinition `json:"columns"`
	Uniques     []UniqueConstraint `json:"uniques,omitempty"`
	ForeignKeys []ForeignKey       `json:"foreign_keys,omitempty"`
	Indexes     []Index            `json:"indexes,omitempty"`
}

// Column returns the named column definition.
func (t *TableSchema) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// HasColumn reports whether the table defines the named column.
func (t *TableSchema) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// PrimaryKey returns the primary key column, if any.
func (t *TableSchema) PrimaryKey() (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// ColumnNames returns the column names in table order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the named index.
func (t *TableSchema) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Clone returns a deep copy so a published schema can't be mutated through aliases.
func (t *TableSchema) Clone() *TableSchema {
	cp := &TableSchema{
		Name:        t.Name,
		Columns:     slices.Clone(t.Columns),
		ForeignKeys: slices.Clone(t.ForeignKeys),
	}
	for _, u := range t.Uniques {
		cp.Uniques = append(cp.Uniques, UniqueConstraint{Columns: slices.Clone(u.Columns)})
	}
	for _, idx := range t.Indexes {
		cp.Indexes = append(cp.Indexes, Index{Name: idx.Name, Columns: slices.Clone(idx.Columns), Unique: idx.Unique})
	}
	return cp
}
