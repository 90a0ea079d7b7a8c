package sqlengine_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine"
	"github.com/AntonStoeckl/specquery-go/testutil/helper"
	"github.com/AntonStoeckl/specquery-go/testutil/helper/postgreswrapper"
)

type readerRow struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
	Status string `db:"status"`
}

func Test_NewProvider_NilDatabase_Fails(t *testing.T) {
	_, err := sqlengine.NewProviderFromSQLite(nil)
	assert.ErrorIs(t, err, specquery.ErrNilDatabaseConnection)

	_, err = sqlengine.NewProviderFromSQLDB(nil)
	assert.ErrorIs(t, err, specquery.ErrNilDatabaseConnection)

	_, err = sqlengine.NewProviderFromSQLX(nil)
	assert.ErrorIs(t, err, specquery.ErrNilDatabaseConnection)

	_, err = sqlengine.NewProviderFromPGXPool(nil)
	assert.ErrorIs(t, err, specquery.ErrNilDatabaseConnection)

	_, err = sqlengine.NewProviderFromPGXPoolWithReplica(nil, nil)
	assert.ErrorIs(t, err, specquery.ErrNilDatabaseConnection)
}

func Test_NewProvider_Dialects(t *testing.T) {
	// setup
	db := helper.OpenSQLiteDB(t)

	// act
	sqliteProvider, err := sqlengine.NewProviderFromSQLite(db)
	require.NoError(t, err)

	sqlProvider, err := sqlengine.NewProviderFromSQLDB(db)
	require.NoError(t, err)

	sqlxProvider, err := sqlengine.NewProviderFromSQLX(sqlx.NewDb(db, "sqlite"), sqlengine.WithDialect(sqlengine.DialectSQLite))
	require.NoError(t, err)

	// assert
	assert.Equal(t, sqlengine.DialectSQLite, sqliteProvider.Dialect())
	assert.Equal(t, sqlengine.DialectPostgres, sqlProvider.Dialect())
	assert.Equal(t, sqlengine.DialectSQLite, sqlxProvider.Dialect())
}

func Test_WithDialect_Unsupported_Fails(t *testing.T) {
	_, err := sqlengine.NewProviderFromSQLite(helper.OpenSQLiteDB(t), sqlengine.WithDialect("mysql"))

	assert.ErrorIs(t, err, specquery.ErrUnsupportedDialect)
}

func Test_SingleResult_OneMatch_ReturnsFoundEntity(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	ada := helper.FixtureReader(t, "Ada")
	helper.GivenReaders(t, db, ada, helper.FixtureReader(t, "Grace"))

	// act
	outcome, err := singleResult(ctx, t, provider, readers, specquery.AttributeEquals("email", ada.Email))

	// assert
	require.NoError(t, err)
	require.True(t, outcome.IsFound())

	value, _ := outcome.Value()
	assert.Equal(t, &readerRow{ID: ada.ID.String(), Name: "Ada", Email: ada.Email, Status: "active"}, value)
}

func Test_SingleResult_NoMatch_ReturnsAbsent(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	helper.GivenReaders(t, db, helper.FixtureReader(t, "Ada"))

	// act
	outcome, err := singleResult(ctx, t, provider, readers, specquery.AttributeEquals("name", "Nobody"))

	// assert
	require.NoError(t, err)
	assert.False(t, outcome.IsFound())
}

func Test_SingleResult_TwoMatches_ReturnsIncorrectResultSize(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	helper.GivenReaders(t, db,
		helper.FixtureReader(t, "Ada"),
		helper.FixtureReader(t, "Ada"),
		helper.FixtureReader(t, "Ada"),
	)

	// act
	_, err := singleResult(ctx, t, provider, readers, specquery.AttributeEquals("name", "Ada"))

	// assert
	var sizeErr *specquery.IncorrectResultSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 1, sizeErr.ExpectedSize)
	assert.Equal(t, 2, sizeErr.ActualSize, "at most two rows are fetched")
}

func Test_SingleResult_UnrestrictedQuery_OnSingleRowTable(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	only := helper.FixtureReader(t, "Ada")
	helper.GivenReaders(t, db, only)

	// act
	outcome, err := singleResult(ctx, t, provider, readers, specquery.Where(nil))

	// assert
	require.NoError(t, err)
	value, found := outcome.Value()
	require.True(t, found)
	assert.Equal(t, only.ID.String(), value.(*readerRow).ID)
}

func Test_SingleResult_CompositeSpecification(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	active := helper.FixtureReader(t, "Ada")
	canceled := helper.FixtureReader(t, "Ada")
	canceled.Status = "canceled"
	helper.GivenReaders(t, db, active, canceled, helper.FixtureReader(t, "Grace"))

	spec := specquery.AllOf(
		specquery.AttributeEquals("Name", "Ada"),
		specquery.Not(specquery.AttributeIn("status", "canceled", "suspended")),
	)

	// act
	outcome, err := singleResult(ctx, t, provider, readers, spec)

	// assert
	require.NoError(t, err)
	value, found := outcome.Value()
	require.True(t, found)
	assert.Equal(t, active.ID.String(), value.(*readerRow).ID)
}

func Test_SingleResult_NegatedUnrestrictedSpecification_ReturnsAbsent(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	helper.GivenReaders(t, db, helper.FixtureReader(t, "Ada"))

	for _, spec := range []specquery.Specification{
		specquery.Not(specquery.AllOf(nil)),
		specquery.Not(specquery.Where(nil)),
	} {
		// act
		outcome, err := singleResult(ctx, t, provider, readers, spec)

		// assert
		require.NoError(t, err)
		_, found := outcome.Value()
		assert.False(t, found)
	}
}

func Test_SingleResult_AnyOfWithUnrestrictedBranch_ReturnsFound(t *testing.T) {
	// setup
	ctx := context.Background()
	db, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	// arrange
	ada := helper.FixtureReader(t, "Ada")
	helper.GivenReaders(t, db, ada)

	spec := specquery.AnyOf(
		specquery.AllOf(nil),
		specquery.AttributeEquals("name", "Nobody"),
	)

	// act
	outcome, err := singleResult(ctx, t, provider, readers, spec)

	// assert
	require.NoError(t, err)
	value, found := outcome.Value()
	require.True(t, found)
	assert.Equal(t, ada.ID.String(), value.(*readerRow).ID)
}

func Test_SingleResult_MissingTable_ReturnsQueryingFailed(t *testing.T) {
	// setup
	ctx := context.Background()
	provider, err := sqlengine.NewProviderFromSQLite(helper.OpenSQLiteDB(t))
	require.NoError(t, err)

	// act
	_, err = singleResult(ctx, t, provider, givenReaderEntity(t), specquery.AttributeEquals("name", "Ada"))

	// assert
	assert.ErrorIs(t, err, specquery.ErrQueryingFailed)
}

func Test_SingleResult_CanceledContext_Fails(t *testing.T) {
	// setup
	_, provider := givenReadersProvider(t)
	readers := givenReaderEntity(t)

	qc, err := provider.CurrentQueryContext(context.Background())
	require.NoError(t, err)

	query := buildQuery(t, qc, readers, specquery.AttributeEquals("name", "Ada"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err = qc.SingleResult(ctx, query)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_CurrentQueryContext_CanceledContext_Fails(t *testing.T) {
	// setup
	_, provider := givenReadersProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	qc, err := provider.CurrentQueryContext(ctx)

	// assert
	assert.Nil(t, qc)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_SingleResult_LogsSQLAndRecordsMetrics(t *testing.T) {
	// setup
	ctx := context.Background()
	db := helper.OpenSQLiteDBWithReaders(t)
	logHandler := helper.NewLogHandlerSpy(false)
	metrics := helper.NewMetricsCollectorSpy()

	provider, err := sqlengine.NewProviderFromSQLite(
		db,
		sqlengine.WithLogger(slog.New(logHandler)),
		sqlengine.WithMetrics(metrics),
	)
	require.NoError(t, err)

	// arrange
	ada := helper.FixtureReader(t, "Ada")
	helper.GivenReaders(t, db, ada)

	// act
	_, err = singleResult(ctx, t, provider, givenReaderEntity(t), specquery.AttributeEquals("id", ada.ID.String()))

	// assert
	require.NoError(t, err)

	assert.True(t, logHandler.HasDebugLog("executed sql for: single result").
		WithDurationMS().
		WithAttributeKey("query").
		Assert())

	assert.True(t, metrics.HasDurationRecordForMetric("specquery_sql_query_duration_seconds").
		WithLabel("entity", "reader").
		WithLabel("dialect", "sqlite3").
		Assert())

	assert.True(t, metrics.HasValueRecordForMetric("specquery_sql_rows_fetched").
		WithValue(1).
		WithLabel("multiple_rows", "false").
		Assert())
}

func Test_SingleResult_UsesContextualObservabilityWhenAvailable(t *testing.T) {
	// setup
	ctx := context.Background()
	db := helper.OpenSQLiteDBWithReaders(t)
	logHandler := helper.NewLogHandlerSpy(false)
	metrics := helper.NewContextualMetricsCollectorSpy()

	provider, err := sqlengine.NewProviderFromSQLite(
		db,
		sqlengine.WithContextualLogger(slog.New(logHandler)),
		sqlengine.WithMetrics(metrics),
	)
	require.NoError(t, err)

	// act
	_, err = singleResult(ctx, t, provider, givenReaderEntity(t), specquery.AttributeEquals("name", "Ada"))

	// assert
	require.NoError(t, err)
	assert.True(t, logHandler.HasDebugLog("executed sql for: single result").Assert())
	assert.Equal(t, 2, metrics.GetContextualCallCount())
}

func Test_Postgres_SingleResult(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	provider := wrapper.GetProvider()
	readers := givenReaderEntity(t)

	// arrange
	ada := helper.FixtureReader(t, "Ada")
	postgreswrapper.GivenReaders(t, wrapper, ada, helper.FixtureReader(t, "Grace"), helper.FixtureReader(t, "Grace"))

	// act
	found, foundErr := singleResult(ctx, t, provider, readers, specquery.AttributeEquals("email", ada.Email))
	absent, absentErr := singleResult(
		specquery.WithEventualConsistency(ctx),
		t,
		provider,
		readers,
		specquery.AttributeEquals("name", "Nobody"),
	)
	_, multipleErr := singleResult(ctx, t, provider, readers, specquery.AttributeEquals("name", "Grace"))

	// assert
	require.NoError(t, foundErr)
	value, _ := found.Value()
	assert.Equal(t, ada.ID.String(), value.(*readerRow).ID)

	require.NoError(t, absentErr)
	assert.False(t, absent.IsFound())

	assert.ErrorIs(t, multipleErr, specquery.ErrMultiplicityViolation)
}

func givenReadersProvider(t *testing.T) (*sql.DB, *sqlengine.Provider) {
	t.Helper()

	db := helper.OpenSQLiteDBWithReaders(t)
	provider, err := sqlengine.NewProviderFromSQLite(db)
	require.NoError(t, err)

	return db, provider
}

func givenReaderEntity(t *testing.T) specquery.EntityType {
	t.Helper()

	entity, err := specquery.NewEntityType("reader", "readers", readerRow{})
	require.NoError(t, err)

	return entity
}

func buildQuery(
	t *testing.T,
	qc specquery.QueryContext,
	entity specquery.EntityType,
	spec specquery.Specification,
) *specquery.CriteriaQuery {

	t.Helper()

	query := qc.CreateQuery(entity)
	root := query.From(entity)

	predicate, err := spec.ToPredicate(root, query, qc.CriteriaBuilder())
	require.NoError(t, err)

	return query.Where(predicate).Select(root)
}

func singleResult(
	ctx context.Context,
	t *testing.T,
	provider *sqlengine.Provider,
	entity specquery.EntityType,
	spec specquery.Specification,
) (specquery.Outcome, error) {

	t.Helper()

	qc, err := provider.CurrentQueryContext(ctx)
	require.NoError(t, err)

	return qc.SingleResult(ctx, buildQuery(t, qc, entity, spec))
}
