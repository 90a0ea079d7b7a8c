// Package adapters provide database adapter implementations for the sqlengine query context.
//
// Three connection types are supported: pgxpool.Pool, sql.DB and sqlx.DB. All adapters expose
// the same read-only DBAdapter interface, so the query context can run a parameterized query
// and iterate over the rows without knowing the driver behind it.
package adapters
