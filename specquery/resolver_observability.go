package specquery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	logMsgResolved         = "specquery operation: resolve single"
	logMsgResolveFailed    = "specquery operation: resolve single failed"
	logMsgEmptyResult      = "specquery operation: required single result not found"
	logAttrError           = "error"
	logAttrEntity          = "entity"
	logAttrOutcome         = "outcome"
	logAttrErrorType       = "error_type"
	logAttrDurationMS      = "duration_ms"
	metricResolveDuration  = "specquery_resolve_duration_seconds"
	metricResolveOutcomes  = "specquery_resolve_outcomes_total"
	metricErrors           = "specquery_errors_total"
	spanNameResolveSingle  = "specquery.resolve_single"
	spanAttrOperation      = "operation"
	spanAttrEntity         = "entity"
	spanAttrNullable       = "nullable"
	spanAttrReturnType     = "return_type"
	spanAttrOutcome        = "outcome"
	spanAttrErrorType      = "error_type"
	spanAttrDurationMS     = "duration_ms"
	labelStatus            = "status"
	operationResolveSingle = "resolve_single"
	statusSuccess          = "success"
	statusError            = "error"

	// ErrorTypeInvalidArgument and the following are the error_type label values.
	ErrorTypeInvalidArgument       = "invalid_argument"
	ErrorTypeEmptyResult           = "empty_result"
	ErrorTypeMultiplicityViolation = "multiplicity_violation"
	ErrorTypeConversionFailed      = "conversion_failed"
	ErrorTypePredicateFailed       = "predicate_failed"
	ErrorTypeCanceled              = "canceled"
	ErrorTypeQueryFailed           = "query_failed"
)

func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return ErrorTypeInvalidArgument
	case errors.Is(err, ErrEmptyResult):
		return ErrorTypeEmptyResult
	case errors.Is(err, ErrMultiplicityViolation):
		return ErrorTypeMultiplicityViolation
	case errors.Is(err, ErrConversionFailed):
		return ErrorTypeConversionFailed
	case errors.Is(err, ErrBuildingPredicateFailed):
		return ErrorTypePredicateFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCanceled
	default:
		return ErrorTypeQueryFailed
	}
}

// === Logging ===

// logResolveSuccess logs the outcome at info level.
func (r *Resolver) logResolveSuccess(ctx context.Context, entity EntityType, outcome string, duration time.Duration) {
	args := []any{logAttrEntity, entity.Name(), logAttrOutcome, outcome, logAttrDurationMS, toMilliseconds(duration)}

	if r.logger != nil {
		r.logger.Info(logMsgResolved, args...)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.InfoContext(ctx, logMsgResolved, args...)
	}
}

// logResolveFailure logs an EmptyResult at info level, being a business outcome, and everything else at error level.
func (r *Resolver) logResolveFailure(
	ctx context.Context,
	entity EntityType,
	errorType string,
	err error,
	duration time.Duration,
) {

	if errorType == ErrorTypeEmptyResult {
		args := []any{logAttrEntity, entity.Name(), logAttrDurationMS, toMilliseconds(duration)}

		if r.logger != nil {
			r.logger.Info(logMsgEmptyResult, args...)
		}

		if r.contextualLogger != nil {
			r.contextualLogger.InfoContext(ctx, logMsgEmptyResult, args...)
		}

		return
	}

	args := []any{
		logAttrError, err.Error(),
		logAttrErrorType, errorType,
		logAttrEntity, entity.Name(),
		logAttrDurationMS, toMilliseconds(duration),
	}

	if r.logger != nil {
		r.logger.Error(logMsgResolveFailed, args...)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.ErrorContext(ctx, logMsgResolveFailed, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics Observer Pattern ===

type resolveMetricsObserver struct {
	collector MetricsCollector
	ctx       context.Context
}

func (r *Resolver) startResolveMetrics(ctx context.Context) *resolveMetricsObserver {
	return &resolveMetricsObserver{collector: r.metricsCollector, ctx: ctx}
}

func (o *resolveMetricsObserver) recordSuccess(outcome string, duration time.Duration) {
	if o.collector == nil {
		return
	}

	o.recordDuration(duration, statusSuccess)
	o.incrementCounter(metricResolveOutcomes, map[string]string{
		spanAttrOperation: operationResolveSingle,
		spanAttrOutcome:   outcome,
	})
}

func (o *resolveMetricsObserver) recordError(errorType string, duration time.Duration) {
	if o.collector == nil {
		return
	}

	o.recordDuration(duration, statusError)
	o.incrementCounter(metricErrors, map[string]string{
		spanAttrOperation: operationResolveSingle,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	})
}

func (o *resolveMetricsObserver) recordDuration(duration time.Duration, status string) {
	labels := map[string]string{
		spanAttrOperation: operationResolveSingle,
		labelStatus:       status,
	}

	if contextual, ok := o.collector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(o.ctx, metricResolveDuration, duration, labels)
		return
	}

	o.collector.RecordDuration(metricResolveDuration, duration, labels)
}

func (o *resolveMetricsObserver) incrementCounter(metric string, labels map[string]string) {
	if contextual, ok := o.collector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(o.ctx, metric, labels)
		return
	}

	o.collector.IncrementCounter(metric, labels)
}

// === Tracing Observer Pattern ===

type resolveTracingObserver struct {
	collector TracingCollector
	span      SpanContext
}

func (r *Resolver) startResolveTracing(
	ctx context.Context,
	entity EntityType,
	shape ReturnShape,
) (*resolveTracingObserver, context.Context) {

	if r.tracingCollector == nil {
		return &resolveTracingObserver{}, ctx
	}

	attrs := map[string]string{
		spanAttrOperation: operationResolveSingle,
		spanAttrEntity:    entity.Name(),
		spanAttrNullable:  strconv.FormatBool(shape.Nullable),
	}

	if shape.Type != nil {
		attrs[spanAttrReturnType] = shape.Type.String()
	}

	newCtx, span := r.tracingCollector.StartSpan(ctx, spanNameResolveSingle, attrs)

	return &resolveTracingObserver{collector: r.tracingCollector, span: span}, newCtx
}

func (o *resolveTracingObserver) finishSuccess(outcome string, duration time.Duration) {
	if o.collector == nil || o.span == nil {
		return
	}

	o.collector.FinishSpan(o.span, statusSuccess, map[string]string{
		spanAttrOutcome:    outcome,
		spanAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
	})
}

func (o *resolveTracingObserver) finishError(errorType string, duration time.Duration) {
	if o.collector == nil || o.span == nil {
		return
	}

	o.collector.FinishSpan(o.span, statusError, map[string]string{
		spanAttrErrorType:  errorType,
		spanAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
	})
}
