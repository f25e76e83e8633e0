package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Session errors.
var (
	// ErrTxActive is returned by Begin when the session already has an open transaction.
	ErrTxActive = errors.New("database: transaction already active on session")

	// ErrNoTx is returned by Commit or Rollback when no transaction is open.
	ErrNoTx = errors.New("database: no active transaction on session")

	// ErrSessionClosed is returned for any call on a closed session.
	ErrSessionClosed = errors.New("database: session closed")
)

// IsConstraintError reports whether err is a SQLite constraint failure
// (UNIQUE, NOT NULL, FOREIGN KEY, CHECK or PRIMARY KEY).
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
