// Package database is the storage engine boundary for litemodel.
//
// This package manages:
//   - Opening the embedded SQLite file with WAL mode and foreign keys on
//   - Dedicated sessions (Conn) with explicit BEGIN/COMMIT/ROLLBACK
//   - Table introspection via PRAGMA table_info
//   - Classifying engine errors (constraint failures)
//
// Sessions are not pooled here. The engine keeps no idle handles, and
// the pool package decides how many sessions exist and who holds them.
//
// Security Considerations:
//   - All statements are parameterised; only validated identifiers are
//     ever written into statement text
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors between sessions
//
// Usage:
//
//	engine, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	conn, err := engine.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	if err := conn.Begin(ctx); err != nil {
//	    return err
//	}
//	if _, err := conn.Exec(ctx, `INSERT INTO "users" ("name") VALUES (?)`, name); err != nil {
//	    conn.Rollback()
//	    return err
//	}
//	return conn.Commit()
//
// An in-memory path (":memory:") gives every session its own private
// database; use a file path whenever more than one session is opened.
package database
