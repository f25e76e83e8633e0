// Package pool lends a bounded set of database sessions to concurrent callers.
//
// At most Size sessions exist at once. Acquire prefers an idle session,
// opens a new one while below capacity, and otherwise queues the caller.
// Queued callers are served in arrival order, each by a session handed
// straight from Release.
//
// A caller that gives up (AcquireTimeout or its own context) leaves the
// queue with ErrPoolExhausted and never ends up holding a session. A
// session released with a transaction still open is rolled back before
// anyone else sees it.
//
// Acquire returns a fresh handle for every loan, even when the session
// underneath is reused. Release and Discard accept a handle once; after
// that it is rejected with ErrInvalidRelease.
//
// Usage:
//
//	p := pool.New(func(ctx context.Context) (database.Session, error) {
//	    return engine.Connect(ctx)
//	}, pool.Options{Size: 5, AcquireTimeout: 30 * time.Second})
//	defer p.Shutdown(context.Background())
//
//	err := p.With(ctx, func(s database.Session) error {
//	    _, err := s.Exec(ctx, `DELETE FROM "sessions" WHERE "expired" = ?`, 1)
//	    return err
//	})
package pool
