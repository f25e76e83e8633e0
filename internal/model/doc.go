// Package model maps tables to schemas and runs CRUD and bulk operations
// against them.
//
// A Model is built in two phases. First the schema is described with
// AddColumn, AddUniqueConstraint, AddForeignKey and CreateIndex; every call
// is validated at once. Create then publishes the table and freezes the
// schema. Data operations before Create fail with ErrNotCreated.
//
//	users, err := model.New("users", model.Deps{Tx: mgr})
//	if err != nil {
//	    return err
//	}
//	_ = users.AddColumn("id", schema.TypeInteger, model.PrimaryKey())
//	_ = users.AddColumn("email", schema.TypeText, model.Nullable(false))
//	_ = users.AddUniqueConstraint("email")
//	if err := users.Create(ctx); err != nil {
//	    return err
//	}
//
//	id, err := users.Insert(ctx, model.Record{"email": "a@example.com"})
//
// Every mutation runs in a transaction. When ctx carries one (see
// txn.FromContext) the operation joins it; otherwise it gets its own.
// Reads follow the same rule. Bulk operations are all-or-nothing.
//
// Statements and their parameters come from the query package, so values
// never reach the SQL text. Builder and validation errors are returned
// before a session is taken from the pool.
package model
