package query

import (
	"errors"
	"fmt"

	"github.com/nerrad567/litemodel/internal/schema"
)

// Domain errors for the query package.
//
// Every builder error is raised before a statement reaches the database:
//
//	if errors.Is(err, query.ErrConflictingClause) {
//	    // two ORDER BY nodes in one tree
//	}
var (
	// ErrUnknownColumn is returned when a record or condition names a column
	// the table doesn't have. It is the schema package's sentinel.
	ErrUnknownColumn = schema.ErrUnknownColumn

	// ErrConflictingClause is returned for a second ORDER BY, LIMIT or OFFSET,
	// or for ordering/pagination nested inside a boolean group.
	ErrConflictingClause = errors.New("query: conflicting clause")

	// ErrInvalidRange is returned for a negative LIMIT or OFFSET.
	ErrInvalidRange = errors.New("query: invalid range")

	// ErrEmptyUpdate is returned when an UPDATE has nothing to set.
	ErrEmptyUpdate = errors.New("query: empty update")

	// ErrEmptySet is returned for an empty bulk input or an empty OR group.
	ErrEmptySet = errors.New("query: empty set")

	// ErrSchemaMismatch is returned when bulk records disagree on their column sets.
	ErrSchemaMismatch = errors.New("query: records disagree on columns")

	// ErrEmptyFilter is returned when a filtered DELETE has no conditions.
	// Use an explicit clear to empty a table.
	ErrEmptyFilter = errors.New("query: empty filter")

	// ErrNullKey is returned when a key lookup is given a nil key value.
	ErrNullKey = errors.New("query: key value is nil")

	// ErrUnknownNode is returned for a condition node the builder can't render.
	ErrUnknownNode = errors.New("query: unknown condition node")
)

// RowError attributes a builder error to one record of a bulk input.
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
