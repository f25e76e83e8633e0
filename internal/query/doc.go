// Package query turns condition trees and records into parameterised SQL.
//
// A condition tree is a list of Node values. Top-level filters are joined
// with AND; Or and And build nested, parenthesised groups:
//
//	stmt, err := query.BuildSelect(users,
//	    query.Or(query.Equals("team", 1), query.Equals("team", 2)),
//	    query.Contains("name", "ann"),
//	    query.OrderBy("id", true),
//	    query.Limit(10),
//	)
//	// SELECT "id", "name", "team" FROM "users"
//	//   WHERE ("team" = ? OR "team" = ?) AND "name" LIKE ? ESCAPE '\'
//	//   ORDER BY "id" DESC LIMIT ?
//
// Output is deterministic: the same tree always yields the same text and
// the same argument order, which keeps the engine's statement cache warm.
//
// Values are only ever bound as parameters. Identifiers come from the
// validated schema and are double-quoted; a column that isn't in the
// schema is rejected with ErrUnknownColumn before any text is produced.
package query
