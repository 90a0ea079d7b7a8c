package config

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// PGXPoolConfig returns a pgxpool.Config for dsn with the pool settings applied.
func (c *Config) PGXPoolConfig(dsn string) (*pgxpool.Config, error) {
	dbConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	dbConfig.MaxConns = c.Pool.MaxConns
	dbConfig.MinConns = c.Pool.MinConns
	dbConfig.MaxConnLifetime = c.Pool.MaxConnLifetime
	dbConfig.MaxConnIdleTime = c.Pool.MaxConnIdleTime
	dbConfig.HealthCheckPeriod = c.Pool.HealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = c.Pool.ConnectTimeout

	return dbConfig, nil
}

// OpenPGXPool creates a pgx pool for dsn and pings it.
func (c *Config) OpenPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	dbConfig, err := c.PGXPoolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return pool, nil
}

// OpenSQLDB opens a PostgreSQL sql.DB through lib/pq and pings it.
func (c *Config) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, c.DSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	c.applyPoolSettings(db)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return db, nil
}

// OpenSQLX opens a PostgreSQL sqlx.DB through lib/pq and pings it.
func (c *Config) OpenSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driverPostgres, c.DSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	c.applyPoolSettings(db.DB)

	return db, nil
}

// OpenSQLite opens a SQLite database with the pure Go modernc driver.
// In-memory databases live per connection, so they get exactly one.
func (c *Config) OpenSQLite(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(driverSQLite, c.DSN)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	c.applyPoolSettings(db)

	if strings.Contains(c.DSN, ":memory:") || strings.Contains(c.DSN, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, pingErr)
	}

	return db, nil
}

func (c *Config) applyPoolSettings(db *sql.DB) {
	db.SetMaxOpenConns(int(c.Pool.MaxConns))
	db.SetMaxIdleConns(int(c.Pool.MinConns))
	db.SetConnMaxLifetime(c.Pool.MaxConnLifetime)
	db.SetConnMaxIdleTime(c.Pool.MaxConnIdleTime)
}

// NewProvider opens the configured database and builds a sqlengine.Provider on it.
// The returned close func releases every handle that was opened.
func NewProvider(ctx context.Context, cfg *Config, options ...sqlengine.Option) (*sqlengine.Provider, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.Dialect != "" {
		options = append([]sqlengine.Option{sqlengine.WithDialect(cfg.Dialect)}, options...)
	}

	switch cfg.Adapter {
	case AdapterPGX:
		return newPGXProvider(ctx, cfg, options)

	case AdapterSQL:
		db, err := cfg.OpenSQLDB(ctx)
		if err != nil {
			return nil, nil, err
		}

		provider, err := sqlengine.NewProviderFromSQLDB(db, options...)

		return withCloser(provider, err, db.Close)

	case AdapterSQLX:
		db, err := cfg.OpenSQLX(ctx)
		if err != nil {
			return nil, nil, err
		}

		provider, err := sqlengine.NewProviderFromSQLX(db, options...)

		return withCloser(provider, err, db.Close)

	default:
		db, err := cfg.OpenSQLite(ctx)
		if err != nil {
			return nil, nil, err
		}

		provider, err := sqlengine.NewProviderFromSQLite(db, options...)

		return withCloser(provider, err, db.Close)
	}
}

func newPGXProvider(ctx context.Context, cfg *Config, options []sqlengine.Option) (*sqlengine.Provider, func() error, error) {
	primary, err := cfg.OpenPGXPool(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	if cfg.ReplicaDSN == "" {
		provider, providerErr := sqlengine.NewProviderFromPGXPool(primary, options...)

		return withCloser(provider, providerErr, func() error {
			primary.Close()
			return nil
		})
	}

	replica, err := cfg.OpenPGXPool(ctx, cfg.ReplicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	provider, err := sqlengine.NewProviderFromPGXPoolWithReplica(primary, replica, options...)

	return withCloser(provider, err, func() error {
		replica.Close()
		primary.Close()
		return nil
	})
}

// withCloser pairs a provider with its close func. If the provider could not be built the
// handles are closed right away.
func withCloser(provider *sqlengine.Provider, err error, closeFn func() error) (*sqlengine.Provider, func() error, error) {
	if err != nil {
		return nil, nil, errors.Join(err, closeFn())
	}

	return provider, closeFn, nil
}
