package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine/internal/adapters"
)

const (
	// DialectPostgres renders PostgreSQL.
	DialectPostgres = "postgres"

	// DialectSQLite renders SQLite.
	DialectSQLite = "sqlite3"

	// singleResultFetchSize is one more row than a single result may have,
	// enough to detect a multiplicity violation.
	singleResultFetchSize = 2
)

const (
	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgIterateRowsFailed      = "failed to iterate database rows"
	logMsgMultiplicityViolation  = "single result query matched more than one row"
	logMsgSQLExecuted            = "executed sql for: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrEntity                = "entity"
	logAttrRowCount              = "row_count"
	logAttrDurationMS            = "duration_ms"
	logActionSingleResult        = "single result"
)

// Provider is a specquery.QueryContextProvider and specquery.RepositoryOperations backed by SQL.
// It is safe for concurrent use; every CurrentQueryContext call hands out a fresh query context.
type Provider struct {
	db               adapters.DBAdapter
	dialect          string
	logger           specquery.Logger
	contextualLogger specquery.ContextualLogger
	metricsCollector specquery.MetricsCollector
}

// NewProviderFromPGXPool creates a new Provider using a pgx Pool with optional configuration.
func NewProviderFromPGXPool(db *pgxpool.Pool, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, specquery.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewPGXAdapter(db), DialectPostgres, options...)
}

// NewProviderFromPGXPoolWithReplica creates a new Provider using a primary and a replica pgx Pool.
// The replica serves queries whose context carries specquery.EventualConsistency.
func NewProviderFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Provider, error) {
	if primary == nil || replica == nil {
		return nil, specquery.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewPGXAdapterWithReplica(primary, replica), DialectPostgres, options...)
}

// NewProviderFromSQLDB creates a new Provider using a sql.DB with optional configuration.
func NewProviderFromSQLDB(db *sql.DB, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, specquery.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLAdapter(db), DialectPostgres, options...)
}

// NewProviderFromSQLX creates a new Provider using a sqlx.DB with optional configuration.
func NewProviderFromSQLX(db *sqlx.DB, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, specquery.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLXAdapter(db), DialectPostgres, options...)
}

// NewProviderFromSQLite creates a new Provider for a SQLite sql.DB, rendering the sqlite3 dialect.
func NewProviderFromSQLite(db *sql.DB, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, specquery.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLAdapter(db), DialectSQLite, options...)
}

func newProvider(db adapters.DBAdapter, dialect string, options ...Option) (*Provider, error) {
	p := &Provider{
		db:      db,
		dialect: dialect,
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Dialect returns the goqu dialect name.
func (p *Provider) Dialect() string {
	return p.dialect
}

// CurrentQueryContext returns a query context for one resolution call.
func (p *Provider) CurrentQueryContext(ctx context.Context) (specquery.QueryContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &queryContext{provider: p}, nil
}

// queryContext implements specquery.QueryContext. It carries no state of its own.
type queryContext struct {
	provider *Provider
}

func (qc *queryContext) CriteriaBuilder() specquery.CriteriaBuilder {
	return specquery.CriteriaBuilder{}
}

func (qc *queryContext) CreateQuery(entity specquery.EntityType) *specquery.CriteriaQuery {
	return specquery.NewCriteriaQuery(entity.InstanceType())
}

// SingleResult runs query once, fetching at most two rows.
func (qc *queryContext) SingleResult(ctx context.Context, query *specquery.CriteriaQuery) (specquery.Outcome, error) {
	p := qc.provider

	root, ok := query.Selection()
	if !ok {
		return specquery.Absent(), errors.Join(specquery.ErrBuildingQueryFailed, errors.New("query has no selection"))
	}

	entity := root.Entity()

	sqlQuery, args, buildErr := p.buildSingleResultQuery(root, query.Restriction())
	if buildErr != nil {
		p.logError(ctx, logMsgBuildSelectQueryFailed, buildErr, logAttrEntity, entity.Name())
		return specquery.Absent(), buildErr
	}

	rows, duration, queryErr := p.executeQuery(ctx, sqlQuery, args)
	if queryErr != nil {
		return specquery.Absent(), queryErr
	}
	defer p.closeRows(ctx, rows)

	instances, fetchErr := p.fetchInstances(ctx, rows, entity)
	if fetchErr != nil {
		return specquery.Absent(), fetchErr
	}

	p.recordQueryMetrics(ctx, entity, len(instances), duration)

	switch len(instances) {
	case 0:
		return specquery.Absent(), nil
	case 1:
		return specquery.Found(instances[0]), nil
	default:
		p.logWarn(ctx, logMsgMultiplicityViolation, logAttrEntity, entity.Name(), logAttrRowCount, len(instances))
		return specquery.Absent(), &specquery.IncorrectResultSizeError{ExpectedSize: 1, ActualSize: len(instances)}
	}
}

// buildSingleResultQuery renders SELECT <entity columns> FROM <table> [WHERE <restriction>] LIMIT 2.
func (p *Provider) buildSingleResultQuery(root specquery.Root, restriction specquery.Predicate) (string, []any, error) {
	entity := root.Entity()

	selectStmt := goqu.Dialect(p.dialect).
		From(goqu.T(entity.Table())).
		Select(root.Columns()...).
		Limit(singleResultFetchSize).
		Prepared(true)

	if !specquery.IsEmptyPredicate(restriction) {
		selectStmt = selectStmt.Where(restriction)
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(specquery.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, args, nil
}

// executeQuery executes the SQL query and returns rows with timing information.
func (p *Provider) executeQuery(ctx context.Context, sqlQuery string, args []any) (adapters.DBRows, time.Duration, error) {
	start := time.Now()
	rows, queryErr := p.db.Query(ctx, sqlQuery, args...)
	duration := time.Since(start)
	p.logQueryWithDuration(ctx, sqlQuery, logActionSingleResult, duration)

	if queryErr != nil {
		p.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(specquery.ErrQueryingFailed, queryErr)
	}

	return rows, duration, nil
}

// fetchInstances scans every row into a new entity instance.
func (p *Provider) fetchInstances(ctx context.Context, rows adapters.DBRows, entity specquery.EntityType) ([]any, error) {
	instances := make([]any, 0, singleResultFetchSize)

	for rows.Next() {
		instance := entity.NewInstance()

		if scanErr := rows.Scan(entity.ScanTargets(instance)...); scanErr != nil {
			p.logError(ctx, logMsgScanRowFailed, scanErr, logAttrEntity, entity.Name())
			return nil, errors.Join(specquery.ErrScanningDBRowFailed, scanErr)
		}

		instances = append(instances, instance.Interface())
	}

	if iterErr := rows.Err(); iterErr != nil {
		p.logError(ctx, logMsgIterateRowsFailed, iterErr, logAttrEntity, entity.Name())
		return nil, errors.Join(specquery.ErrQueryingFailed, iterErr)
	}

	return instances, nil
}

// closeRows safely closes database rows and logs any errors.
func (p *Provider) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		p.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}
