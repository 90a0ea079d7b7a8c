// Package postgreswrapper runs integration tests against a real PostgreSQL database through
// each of the sqlengine adapters. The adapter is chosen with ADAPTER_TYPE (pgxpool, sqldb, sqlx),
// the database with SPECQUERY_TEST_DSN. Tests are skipped when no DSN is set.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/specquery-go/config"
	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine"
	"github.com/AntonStoeckl/specquery-go/testutil/helper"
)

// Adapter type constants
const (
	typePGXPool = "pgxpool"
	typeSQLDB   = "sqldb"
	typeSQLX    = "sqlx"
)

const (
	envTestDSN      = "SPECQUERY_TEST_DSN"
	envAdapterType  = "ADAPTER_TYPE"
	readersTableDDL = `CREATE TABLE IF NOT EXISTS readers (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL,
	status TEXT NOT NULL
)`
	insertReaderSQL = `INSERT INTO readers (id, name, email, status) VALUES ($1, $2, $3, $4)`
	truncateSQL     = `TRUNCATE TABLE readers`
)

// Wrapper abstracts over the different database handles a Provider can be built from.
type Wrapper interface {
	GetProvider() *sqlengine.Provider
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool     *pgxpool.Pool
	provider *sqlengine.Provider
}

func (w *PGXPoolWrapper) GetProvider() *sqlengine.Provider {
	return w.provider
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db       *sql.DB
	provider *sqlengine.Provider
}

func (w *SQLDBWrapper) GetProvider() *sqlengine.Provider {
	return w.provider
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db       *sqlx.DB
	provider *sqlengine.Provider
}

func (w *SQLXWrapper) GetProvider() *sqlengine.Provider {
	return w.provider
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE, makes sure the readers
// table exists and empties it again at test cleanup.
func CreateWrapperWithTestConfig(t testing.TB, options ...sqlengine.Option) Wrapper {
	t.Helper()

	dsn := os.Getenv(envTestDSN)
	if dsn == "" {
		t.Skipf("%s is not set", envTestDSN)
	}

	ctx := context.Background()
	cfg := config.Default()
	cfg.DSN = dsn
	cfg.Pool.MaxConns = 4
	cfg.Pool.MinConns = 0

	var wrapper Wrapper

	switch adapterType := strings.ToLower(os.Getenv(envAdapterType)); adapterType {
	case typePGXPool, "":
		pool, err := cfg.OpenPGXPool(ctx, dsn)
		require.NoError(t, err, "error connecting to DB pool in test setup")

		provider, err := sqlengine.NewProviderFromPGXPool(pool, options...)
		require.NoError(t, err)

		wrapper = &PGXPoolWrapper{pool: pool, provider: provider}

	case typeSQLDB:
		db, err := cfg.OpenSQLDB(ctx)
		require.NoError(t, err, "error connecting to DB in test setup")

		provider, err := sqlengine.NewProviderFromSQLDB(db, options...)
		require.NoError(t, err)

		wrapper = &SQLDBWrapper{db: db, provider: provider}

	case typeSQLX:
		db, err := cfg.OpenSQLX(ctx)
		require.NoError(t, err, "error connecting to DB in test setup")

		provider, err := sqlengine.NewProviderFromSQLX(db, options...)
		require.NoError(t, err)

		wrapper = &SQLXWrapper{db: db, provider: provider}

	default: // neither one of the known types nor empty
		t.Fatalf("unsupported wrapper type from env: %s", adapterType)
	}

	exec(t, wrapper, readersTableDDL)

	t.Cleanup(func() {
		CleanUp(t, wrapper)
		wrapper.Close()
	})

	return wrapper
}

// GivenReaders inserts rows into the readers table for the given wrapper.
func GivenReaders(t testing.TB, wrapper Wrapper, rows ...helper.ReaderRow) {
	t.Helper()

	for _, row := range rows {
		exec(t, wrapper, insertReaderSQL, row.ID.String(), row.Name, row.Email, row.Status)
	}
}

// CleanUp empties the readers table for the given wrapper.
func CleanUp(t testing.TB, wrapper Wrapper) {
	t.Helper()

	exec(t, wrapper, truncateSQL)
}

func exec(t testing.TB, wrapper Wrapper, query string, args ...any) {
	t.Helper()

	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err = w.pool.Exec(context.Background(), query, args...)

	case *SQLDBWrapper:
		_, err = w.db.ExecContext(context.Background(), query, args...)

	case *SQLXWrapper:
		_, err = w.db.ExecContext(context.Background(), query, args...)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	require.NoError(t, err, "error executing %q in test setup", query)
}
