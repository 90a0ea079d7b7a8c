// Package sqlengine provides a SQL implementation of specquery.QueryContextProvider.
//
// Queries are rendered with goqu for the PostgreSQL or SQLite dialect and executed through one of
// several database adapters (pgx pool, sql.DB, sqlx.DB). Single-result execution fetches at most
// two rows, so "none", "one" and "more than one" are told apart with a single round trip.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX) plus SQLite via database/sql
//   - Optional read replica for eventually consistent reads (pgx)
//   - Parameterized SQL, entity columns projected explicitly, rows scanned into the entity struct
//   - Dual-logger support and metrics through the specquery observability interfaces
//
// Usage examples:
//
//	pool, _ := pgxpool.New(context.Background(), dsn)
//	provider, _ := sqlengine.NewProviderFromPGXPool(
//		pool,
//		sqlengine.WithLogger(debugLogger),
//	)
//
//	qc, _ := provider.CurrentQueryContext(ctx)
//	reader, err := resolver.ResolveSingle(ctx, spec, readers, specquery.ReturnShape{}, qc)
package sqlengine
