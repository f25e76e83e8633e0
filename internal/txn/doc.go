// Package txn demarcates units of work on pooled sessions.
//
// A Tx owns one session from Begin until it is finalized. Exactly one of
// Commit or Rollback succeeds; any later use reports
// ErrTransactionAlreadyFinalized. The session goes back to the pool once,
// when the transaction is finalized, and is discarded instead if the
// engine could not finish the transaction cleanly.
//
// Run is the scoped form and the one most callers want:
//
//	err := mgr.Run(ctx, func(ctx context.Context, tx *txn.Tx) error {
//	    if _, err := tx.Exec(ctx, `UPDATE "accounts" SET "balance" = "balance" - ? WHERE "id" = ?`, amt, from); err != nil {
//	        return err
//	    }
//	    _, err := tx.Exec(ctx, `UPDATE "accounts" SET "balance" = "balance" + ? WHERE "id" = ?`, amt, to)
//	    return err
//	})
//
// The context handed to fn carries the transaction (see FromContext), so
// model operations called with it join the same unit of work. Nesting is
// not supported: Begin or Run on such a context fails with
// ErrNestedTransactionUnsupported.
package txn
