package schema

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation constants.
const (
	maxIdentifierLength = 64
	identifierPattern   = `^[A-Za-z_][A-Za-z0-9_]*$`
	referencePattern    = `^\s*([A-Za-z0-9_]+)\s*\(\s*([A-Za-z0-9_]+)\s*\)\s*$`

	// DateLayout is the textual form accepted for date columns.
	DateLayout = "2006-01-02"
)

var (
	identifierRegex = regexp.MustCompile(identifierPattern)
	referenceRegex  = regexp.MustCompile(referencePattern)
)

// Pre-computed validation sets for O(1) lookups.
var (
	validTypes    map[ColumnType]struct{}
	validOnDelete map[string]struct{}
)

func init() {
	validTypes = make(map[ColumnType]struct{}, len(AllColumnTypes()))
	for _, t := range AllColumnTypes() {
		validTypes[t] = struct{}{}
	}
	validOnDelete = make(map[string]struct{}, len(AllOnDeleteActions()))
	for _, a := range AllOnDeleteActions() {
		validOnDelete[a] = struct{}{}
	}
}

// ValidateIdentifier checks that name is safe to embed in statement text.
// Identifiers can't be bound as parameters, so this is the only guard.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidIdentifier)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, name, maxIdentifierLength)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidIdentifier, name, identifierPattern)
	}
	return nil
}

// ValidateColumnType checks that t is a recognised column type.
func ValidateColumnType(t ColumnType) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	return nil
}

// ValidateOnDelete checks that action is an accepted foreign key action.
func ValidateOnDelete(action string) error {
	if _, ok := validOnDelete[action]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOnDelete, action)
	}
	return nil
}

// ParseReference parses a foreign key target in "table(column)" form.
func ParseReference(target string) (Reference, error) {
	m := referenceRegex.FindStringSubmatch(target)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: %q must look like table(column)", ErrInvalidReference, target)
	}
	ref := Reference{Table: m[1], Column: m[2]}
	if err := ValidateIdentifier(ref.Table); err != nil {
		return Reference{}, err
	}
	if err := ValidateIdentifier(ref.Column); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// ValidateValue checks a single value against a column's constraints.
//
// A nil value is accepted for nullable columns and for auto-increment
// primary keys (the engine assigns the key).
func ValidateValue(col ColumnDefinition, value any) error {
	if value == nil {
		if col.Nullable || col.AutoIncrement() {
			return nil
		}
		return fmt.Errorf("%w: column %q is not nullable", ErrNullConstraintViolation, col.Name)
	}

	switch col.Type {
	case TypeInteger:
		if !isInteger(value) {
			return invalidValue(col, value)
		}
	case TypeReal:
		if !isInteger(value) && !isFloat(value) {
			return invalidValue(col, value)
		}
	case TypeText:
		s, ok := textValue(value)
		if !ok {
			return invalidValue(col, value)
		}
		if col.MaxLength > 0 && utf8.RuneCountInString(s) > col.MaxLength {
			return fmt.Errorf("%w: column %q allows %d characters", ErrValueTooLong, col.Name, col.MaxLength)
		}
	case TypeDate:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(DateLayout, v); err != nil {
				return fmt.Errorf("%w: column %q expects %s, got %q", ErrInvalidValue, col.Name, DateLayout, v)
			}
		default:
			return invalidValue(col, value)
		}
	default:
		return ValidateColumnType(col.Type)
	}
	return nil
}

// ValidateColumn checks a column definition in isolation.
func ValidateColumn(col ColumnDefinition) error {
	if err := ValidateIdentifier(col.Name); err != nil {
		return err
	}
	if err := ValidateColumnType(col.Type); err != nil {
		return err
	}
	if col.Type == TypeText && col.MaxLength <= 0 {
		return fmt.Errorf("%w: column %q: max length must be a positive integer", ErrInvalidMaxLength, col.Name)
	}
	if col.Default != nil {
		if err := ValidateValue(col, col.Default); err != nil {
			return fmt.Errorf("default for column %q: %w", col.Name, err)
		}
	}
	return nil
}

// AddColumn appends a column after validating it against the table.
func (t *TableSchema) AddColumn(col ColumnDefinition) error {
	if err := ValidateColumn(col); err != nil {
		return err
	}
	if t.HasColumn(col.Name) {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, col.Name)
	}
	if col.PrimaryKey {
		if pk, ok := t.PrimaryKey(); ok {
			return fmt.Errorf("%w: %q already is the primary key", ErrDuplicatePrimaryKey, pk.Name)
		}
		col.Nullable = false
	}
	t.Columns = append(t.Columns, col)
	return nil
}

// AddUnique appends a table-level unique constraint.
func (t *TableSchema) AddUnique(columns []string) error {
	if err := t.checkColumns(columns); err != nil {
		return err
	}
	t.Uniques = append(t.Uniques, UniqueConstraint{Columns: slices.Clone(columns)})
	return nil
}

// AddForeignKey appends a foreign key after validating every part of it.
func (t *TableSchema) AddForeignKey(fk ForeignKey) error {
	if err := t.checkColumns([]string{fk.Column}); err != nil {
		return err
	}
	if err := ValidateIdentifier(fk.Ref.Table); err != nil {
		return err
	}
	if err := ValidateIdentifier(fk.Ref.Column); err != nil {
		return err
	}
	if err := ValidateOnDelete(fk.OnDelete); err != nil {
		return err
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return nil
}

// AddIndex appends a named index.
func (t *TableSchema) AddIndex(idx Index) error {
	if err := ValidateIdentifier(idx.Name); err != nil {
		return err
	}
	if _, ok := t.Index(idx.Name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateIndex, idx.Name)
	}
	if err := t.checkColumns(idx.Columns); err != nil {
		return err
	}
	idx.Columns = slices.Clone(idx.Columns)
	t.Indexes = append(t.Indexes, idx)
	return nil
}

// Validate checks the whole table definition.
func (t *TableSchema) Validate() error {
	if err := ValidateIdentifier(t.Name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %q", ErrNoColumns, t.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if err := ValidateColumn(c); err != nil {
			return err
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.PrimaryKey {
			pks++
		}
	}
	if pks > 1 {
		return fmt.Errorf("%w: table %q has %d", ErrDuplicatePrimaryKey, t.Name, pks)
	}

	for _, u := range t.Uniques {
		if err := t.checkColumns(u.Columns); err != nil {
			return err
		}
	}
	for _, fk := range t.ForeignKeys {
		if err := t.checkColumns([]string{fk.Column}); err != nil {
			return err
		}
		if err := ValidateOnDelete(fk.OnDelete); err != nil {
			return err
		}
	}
	for _, idx := range t.Indexes {
		if err := ValidateIdentifier(idx.Name); err != nil {
			return err
		}
		if err := t.checkColumns(idx.Columns); err != nil {
			return err
		}
	}
	return nil
}

// checkColumns verifies a non-empty column list that only names known columns.
func (t *TableSchema) checkColumns(columns []string) error {
	if len(columns) == 0 {
		return ErrNoColumns
	}
	for _, name := range columns {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
		if !t.HasColumn(name) {
			return fmt.Errorf("%w: %q in table %q", ErrUnknownColumn, name, t.Name)
		}
	}
	return nil
}

func invalidValue(col ColumnDefinition, value any) error {
	return fmt.Errorf("%w: column %q (%s) cannot hold %T", ErrInvalidValue, col.Name, col.Type, value)
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return true
	case uint:
		return uint64(n) <= math.MaxInt64
	case uint64:
		return n <= math.MaxInt64
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func textValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// NormalizeOnDelete collapses whitespace and upper-cases an on-delete action,
// so "set null" and "SET NULL" are accepted alike.
func NormalizeOnDelete(action string) string {
	return strings.ToUpper(strings.Join(strings.Fields(action), " "))
}

// NormalizeValue converts a validated value to the form it is stored in.
// Dates are stored as DateLayout text: a string is re-rendered in that
// layout and a time.Time is taken in UTC and cut to its day. Defaults,
// inserts, keys and filters all bind the same text.
func NormalizeValue(col ColumnDefinition, value any) any {
	if col.Type != TypeDate {
		return value
	}
	switch v := value.(type) {
	case string:
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return value
		}
		return d.Format(DateLayout)
	case time.Time:
		return v.UTC().Format(DateLayout)
	}
	return value
}
