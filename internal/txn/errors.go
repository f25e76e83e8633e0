package txn

import "errors"

// Domain errors for the txn package.
var (
	// ErrTransactionAlreadyFinalized is returned for any use of a transaction
	// after Commit or Rollback.
	ErrTransactionAlreadyFinalized = errors.New("txn: transaction already finalized")

	// ErrNestedTransactionUnsupported is returned by Begin and Run when the
	// context already carries an active transaction. Savepoints are not used.
	ErrNestedTransactionUnsupported = errors.New("txn: nested transactions are not supported")
)
