package specquery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

const (
	expectedSingleResultSize = 1
	outcomeFound             = "found"
	outcomeAbsent            = "absent"
	outcomeConverted         = "converted"
)

var specificationTypeName = reflect.TypeFor[Specification]().String()

// Resolver is the query resolution engine: one Specification in, one query built and executed
// once, one shaped result out. It holds no per-call state and is safe for concurrent use as long
// as every call brings its own QueryContext.
type Resolver struct {
	converter        Converter
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewResolver creates a Resolver which coerces mismatching results with converter.
func NewResolver(converter Converter, options ...Option) (*Resolver, error) {
	if converter == nil {
		return nil, ErrNilConverter
	}

	r := &Resolver{converter: converter}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ResolveSingle resolves spec against entity through qc and returns a value of shape.Type.
//
// Failures are typed so callers can branch on them:
//   - ErrInvalidArgument: nil specification, query context or entity
//   - *EmptyResultError (ErrEmptyResult): nothing matched and shape is not nullable
//   - *IncorrectResultSizeError (ErrMultiplicityViolation): reported by qc, never downgraded
//   - *ConversionError (ErrConversionFailed): the match could not be coerced to shape.Type
//   - ErrBuildingPredicateFailed joined with the specification's own error
//
// Errors returned by qc are passed through unchanged.
func (r *Resolver) ResolveSingle(
	ctx context.Context,
	spec Specification,
	entity EntityType,
	shape ReturnShape,
	qc QueryContext,
) (any, error) {

	tracing, ctx := r.startResolveTracing(ctx, entity, shape)
	metrics := r.startResolveMetrics(ctx)
	start := time.Now()

	value, outcome, err := r.resolve(ctx, spec, entity, shape, qc)
	duration := time.Since(start)

	if err != nil {
		errorType := classifyError(err)
		r.logResolveFailure(ctx, entity, errorType, err, duration)
		metrics.recordError(errorType, duration)
		tracing.finishError(errorType, duration)

		return nil, err
	}

	r.logResolveSuccess(ctx, entity, outcome, duration)
	metrics.recordSuccess(outcome, duration)
	tracing.finishSuccess(outcome, duration)

	return value, nil
}

func (r *Resolver) resolve(
	ctx context.Context,
	spec Specification,
	entity EntityType,
	shape ReturnShape,
	qc QueryContext,
) (any, string, error) {

	if err := validateArguments(spec, entity, qc); err != nil {
		return nil, "", err
	}

	target := shape.Type
	if target == nil {
		target = entity.InstanceType()
	}

	query, err := buildQuery(spec, entity, qc)
	if err != nil {
		return nil, "", err
	}

	outcome, err := qc.SingleResult(ctx, query)
	if err != nil {
		return nil, "", err
	}

	value, found := outcome.Value()
	if !found {
		if shape.Nullable {
			return reflect.Zero(target).Interface(), outcomeAbsent, nil
		}

		return nil, "", &EmptyResultError{ExpectedSize: expectedSingleResultSize}
	}

	return r.reconcile(value, target)
}

func validateArguments(spec Specification, entity EntityType, qc QueryContext) error {
	if isNilSpecification(spec) {
		return fmt.Errorf("%w: argument must be an instance of %s", ErrInvalidArgument, specificationTypeName)
	}

	if qc == nil {
		return fmt.Errorf("%w: query context must not be nil", ErrInvalidArgument)
	}

	if entity.IsZero() {
		return fmt.Errorf("%w: entity type must be built with NewEntityType", ErrInvalidArgument)
	}

	return nil
}

// buildQuery creates the query, lets spec restrict it and projects the whole root entity.
func buildQuery(spec Specification, entity EntityType, qc QueryContext) (*CriteriaQuery, error) {
	query := qc.CreateQuery(entity)
	if query == nil {
		return nil, errors.Join(ErrBuildingQueryFailed, fmt.Errorf("query context created no query for %s", entity))
	}

	root := query.From(entity)

	predicate, err := spec.ToPredicate(root, query, qc.CriteriaBuilder())
	if err != nil {
		return nil, errors.Join(ErrBuildingPredicateFailed, err)
	}

	if predicate == nil {
		return nil, errors.Join(ErrBuildingPredicateFailed, ErrNilPredicate)
	}

	query.Where(predicate).Select(root)

	return query, nil
}

// reconcile returns value untouched when it already satisfies target and asks the converter otherwise.
// Whatever comes back from the converter is checked against target again.
func (r *Resolver) reconcile(value any, target reflect.Type) (any, string, error) {
	if isNilValue(value) {
		return nil, "", &ConversionError{
			Source: reflect.TypeOf(value),
			Target: target,
			Err:    errors.New("query context reported a nil entity as found"),
		}
	}

	source := reflect.TypeOf(value)
	if source.AssignableTo(target) {
		return value, outcomeFound, nil
	}

	converted, err := r.converter.ConvertRequired(value, target)
	if err != nil {
		var conversionErr *ConversionError
		if errors.As(err, &conversionErr) {
			return nil, "", conversionErr
		}

		return nil, "", &ConversionError{Source: source, Target: target, Err: err}
	}

	if isNilValue(converted) || !reflect.TypeOf(converted).AssignableTo(target) {
		return nil, "", &ConversionError{
			Source: source,
			Target: target,
			Err:    fmt.Errorf("converter returned %T", converted),
		}
	}

	return converted, outcomeConverted, nil
}

// isNilValue also catches typed nils such as a nil *T wrapped in an interface.
func isNilValue(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
