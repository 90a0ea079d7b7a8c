package sqlengine

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

const (
	metricSQLQueryDuration = "specquery_sql_query_duration_seconds"
	metricSQLRowsFetched   = "specquery_sql_rows_fetched"
	labelEntity            = "entity"
	labelDialect           = "dialect"
	labelMultipleRows      = "multiple_rows"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (p *Provider) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if p.logger != nil {
		p.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logWarn logs non-critical issues at warn level if a logger is configured.
func (p *Provider) logWarn(ctx context.Context, message string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(message, args...)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (p *Provider) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if p.logger != nil {
		p.logger.Error(message, allArgs...)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// recordQueryMetrics records the query duration and the number of fetched rows.
func (p *Provider) recordQueryMetrics(ctx context.Context, entity specquery.EntityType, rowCount int, duration time.Duration) {
	if p.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelEntity:       entity.Name(),
		labelDialect:      p.dialect,
		labelMultipleRows: strconv.FormatBool(rowCount > 1),
	}

	if contextual, ok := p.metricsCollector.(specquery.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricSQLQueryDuration, duration, labels)
		contextual.RecordValueContext(ctx, metricSQLRowsFetched, float64(rowCount), labels)
		return
	}

	p.metricsCollector.RecordDuration(metricSQLQueryDuration, duration, labels)
	p.metricsCollector.RecordValue(metricSQLRowsFetched, float64(rowCount), labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
