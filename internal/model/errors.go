package model

import (
	"errors"
	"fmt"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
)

// Domain errors for the model package.
//
// Validation and builder errors from the schema and query packages are
// returned unchanged, so callers can also check schema.ErrValidation,
// query.ErrUnknownColumn and friends.
var (
	// ErrSchemaFrozen is returned by schema-builder calls after Create.
	ErrSchemaFrozen = errors.New("model: schema is frozen after create")

	// ErrSchemaConflict is returned by Create when the table already exists
	// with a different shape. The table is left untouched.
	ErrSchemaConflict = errors.New("model: existing table does not match schema")

	// ErrNotCreated is returned by data operations before Create has succeeded.
	ErrNotCreated = errors.New("model: table not created")

	// ErrNoPrimaryKey is returned by key-based operations on a table without one.
	ErrNoPrimaryKey = errors.New("model: table has no primary key")

	// ErrNotFound is returned by Get when no row has the key.
	ErrNotFound = errors.New("model: record not found")

	// ErrUnknownIndex is returned by DropIndex for an index the schema doesn't define.
	ErrUnknownIndex = errors.New("model: unknown index")

	// ErrBulkOperationFailed matches every *BulkError.
	ErrBulkOperationFailed = errors.New("model: bulk operation failed")

	// ErrDatabase matches every *DatabaseError.
	ErrDatabase = errors.New("model: database error")

	// ErrConstraint matches a *DatabaseError caused by a constraint failure
	// (UNIQUE, NOT NULL, FOREIGN KEY).
	ErrConstraint = errors.New("model: constraint violation")
)

// BulkError reports the row that made a bulk operation fail.
// The whole batch has been rolled back when it is returned.
type BulkError struct {
	Op    string
	Table string
	Index int
	Err   error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk %s on %q failed at row %d: %v", e.Op, e.Table, e.Index, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// Is matches ErrBulkOperationFailed.
func (e *BulkError) Is(target error) bool { return target == ErrBulkOperationFailed }

// DatabaseError wraps an error raised by the storage engine.
type DatabaseError struct {
	Op    string
	Table string
	Err   error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s on %q: %v", e.Op, e.Table, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Is matches ErrDatabase, and ErrConstraint for constraint failures.
func (e *DatabaseError) Is(target error) bool {
	switch target {
	case ErrDatabase:
		return true
	case ErrConstraint:
		return database.IsConstraintError(e.Err)
	}
	return false
}

func (m *Model) dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Table: m.name, Err: err}
}
