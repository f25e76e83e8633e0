// Package schema holds table definitions and the validation rules that guard them.
//
// This package manages:
//   - Column, constraint, index and foreign key definitions (TableSchema)
//   - Identifier, type and value validation, run before any I/O
//   - CREATE TABLE / CREATE INDEX rendering for SQLite
//
// Security Considerations:
//   - Identifiers can't be bound as parameters, so every table, column and
//     index name must pass ValidateIdentifier before it reaches statement text
//   - Values never appear in statement text; the one exception is column
//     defaults in DDL, which SQLite can't parameterise and which are quoted
//
// Usage:
//
//	t := &schema.TableSchema{Name: "users"}
//	if err := t.AddColumn(schema.ColumnDefinition{Name: "id", Type: schema.TypeInteger, PrimaryKey: true}); err != nil {
//	    return err
//	}
//	ddl, err := schema.CreateTableSQL(t)
//
// Every validation error matches ErrValidation:
//
//	if errors.Is(err, schema.ErrValidation) {
//	    // caller input was rejected, nothing was written
//	}
package schema
