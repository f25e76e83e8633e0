package schema

import "errors"

// ErrValidation is the umbrella for every validation failure in this package.
//
// Every specific validation error below matches it:
//
//	if errors.Is(err, schema.ErrValidation) {
//	    // rejected before any I/O
//	}
var ErrValidation = errors.New("schema: validation failed")

// validationError is a sentinel that also matches ErrValidation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// Is reports whether target is the umbrella validation error.
func (e *validationError) Is(target error) bool { return target == ErrValidation }

func newValidationError(msg string) error {
	return &validationError{msg: msg}
}

// Domain errors for the schema package.
var (
	// ErrInvalidIdentifier is returned when a table, column or index name is unsafe.
	ErrInvalidIdentifier = newValidationError("schema: invalid identifier")

	// ErrUnsupportedType is returned when a column type is not recognised.
	ErrUnsupportedType = newValidationError("schema: unsupported column type")

	// ErrNullConstraintViolation is returned when a non-null column receives no value.
	ErrNullConstraintViolation = newValidationError("schema: null constraint violation")

	// ErrValueTooLong is returned when a text value exceeds the column's max length.
	ErrValueTooLong = newValidationError("schema: value too long")

	// ErrInvalidValue is returned when a value's Go type does not fit the column type.
	ErrInvalidValue = newValidationError("schema: invalid value")

	// ErrInvalidMaxLength is returned when a text column's max length is not positive.
	ErrInvalidMaxLength = newValidationError("schema: invalid max length")

	// ErrInvalidOnDelete is returned when a foreign key's on-delete action is unknown.
	ErrInvalidOnDelete = newValidationError("schema: invalid on-delete action")

	// ErrInvalidReference is returned when a foreign key target is malformed.
	ErrInvalidReference = newValidationError("schema: invalid reference")

	// ErrDuplicateColumn is returned when a column name is already defined.
	ErrDuplicateColumn = newValidationError("schema: duplicate column")

	// ErrDuplicatePrimaryKey is returned when a second primary key column is added.
	ErrDuplicatePrimaryKey = newValidationError("schema: duplicate primary key")

	// ErrDuplicateIndex is returned when an index name is already defined.
	ErrDuplicateIndex = newValidationError("schema: duplicate index")

	// ErrUnknownColumn is returned when a constraint, index or record references
	// a column that is not part of the table.
	ErrUnknownColumn = newValidationError("schema: unknown column")

	// ErrNoColumns is returned when a constraint or index lists no columns,
	// or a table has no columns at all.
	ErrNoColumns = newValidationError("schema: no columns")
)
