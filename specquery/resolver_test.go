package specquery_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/conversion"
	"github.com/AntonStoeckl/specquery-go/testutil/helper"
)

func Test_NewResolver_NilConverter_Fails(t *testing.T) {
	_, err := specquery.NewResolver(nil)

	assert.ErrorIs(t, err, specquery.ErrNilConverter)
}

func Test_ResolveSingle_MatchWithEntityReturnType_ReturnsEntity(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, &converterStub{})
	found := &member{ID: 1, Name: "x"}
	qc := &queryContextStub{outcome: specquery.Found(found)}

	// act
	value, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](false),
		qc,
	)

	// assert
	require.NoError(t, err)
	assert.Same(t, found, value, "a matching value must be returned untouched")
	assert.Equal(t, 1, qc.callCount())
}

func Test_ResolveSingle_NilReturnType_DefaultsToEntityInstance(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, &converterStub{})
	found := &member{ID: 1, Name: "x"}

	// act
	value, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShape{},
		&queryContextStub{outcome: specquery.Found(found)},
	)

	// assert
	require.NoError(t, err)
	assert.Same(t, found, value)
}

func Test_ResolveSingle_NoMatchNullable_ReturnsZeroValue(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, &converterStub{})

	// act
	value, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("name", "nobody"),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		&queryContextStub{outcome: specquery.Absent()},
	)

	// assert
	require.NoError(t, err)
	assert.Nil(t, value.(*member))
}

func Test_ResolveSingle_NoMatchRequired_ReturnsEmptyResult(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, &converterStub{})

	// act
	value, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("name", "nobody"),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](false),
		&queryContextStub{outcome: specquery.Absent()},
	)

	// assert
	assert.Nil(t, value)
	assert.ErrorIs(t, err, specquery.ErrEmptyResult)

	var emptyErr *specquery.EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 1, emptyErr.ExpectedSize)
}

func Test_ResolveSingle_MultiplicityViolation_IsNeverDowngraded(t *testing.T) {
	for _, nullable := range []bool{false, true} {
		// setup
		ctx := context.Background()
		resolver := givenResolver(t, &converterStub{})
		violation := &specquery.IncorrectResultSizeError{ExpectedSize: 1, ActualSize: 2}

		// act
		value, err := resolver.ResolveSingle(
			ctx,
			specquery.AttributeEquals("tier", "gold"),
			givenMemberEntity(t),
			specquery.ReturnShapeOf[*member](nullable),
			&queryContextStub{err: violation},
		)

		// assert
		assert.Nil(t, value)
		assert.ErrorIs(t, err, specquery.ErrMultiplicityViolation, "nullable=%v", nullable)
		assert.NotErrorIs(t, err, specquery.ErrEmptyResult)
	}
}

func Test_ResolveSingle_IncompatibleReturnType_ReturnsConversionError(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, conversion.NewService())

	// act
	_, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[int](false),
		&queryContextStub{outcome: specquery.Found(&member{ID: 1, Name: "x"})},
	)

	// assert
	var conversionErr *specquery.ConversionError
	require.ErrorAs(t, err, &conversionErr)
	assert.Equal(t, reflect.TypeFor[*member](), conversionErr.Source)
	assert.Equal(t, reflect.TypeFor[int](), conversionErr.Target)
}

func Test_ResolveSingle_ConvertsThroughConverter(t *testing.T) {
	// setup
	ctx := context.Background()
	converter := &converterStub{result: memberBadge{Label: "x"}}
	resolver := givenResolver(t, converter)

	// act
	value, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[memberBadge](false),
		&queryContextStub{outcome: specquery.Found(&member{ID: 1, Name: "x"})},
	)

	// assert
	require.NoError(t, err)
	assert.Equal(t, memberBadge{Label: "x"}, value)
	assert.Equal(t, 1, converter.calls)
}

func Test_ResolveSingle_AssignableValue_SkipsConverter(t *testing.T) {
	// setup
	ctx := context.Background()
	converter := &converterStub{}
	resolver := givenResolver(t, converter)

	// act
	_, err := resolver.ResolveSingle(
		ctx,
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[any](false),
		&queryContextStub{outcome: specquery.Found(&member{ID: 1})},
	)

	// assert
	require.NoError(t, err)
	assert.Zero(t, converter.calls)
}

func Test_ResolveSingle_MisbehavingConverter_ReturnsConversionError(t *testing.T) {
	testCases := []struct {
		name      string
		converter *converterStub
	}{
		{name: "converter fails", converter: &converterStub{err: errConverterBroken}},
		{name: "converter returns nil", converter: &converterStub{}},
		{name: "converter returns wrong type", converter: &converterStub{result: "badge"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			ctx := context.Background()
			resolver := givenResolver(t, tc.converter)

			// act
			value, err := resolver.ResolveSingle(
				ctx,
				specquery.AttributeEquals("id", 1),
				givenMemberEntity(t),
				specquery.ReturnShapeOf[memberBadge](false),
				&queryContextStub{outcome: specquery.Found(&member{ID: 1})},
			)

			// assert
			assert.Nil(t, value)
			assert.ErrorIs(t, err, specquery.ErrConversionFailed)

			var conversionErr *specquery.ConversionError
			require.ErrorAs(t, err, &conversionErr)
			assert.Equal(t, reflect.TypeFor[memberBadge](), conversionErr.Target)
		})
	}
}

func Test_ResolveSingle_ConverterError_IsUnwrappable(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{err: errConverterBroken})

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[memberBadge](false),
		&queryContextStub{outcome: specquery.Found(&member{ID: 1})},
	)

	// assert
	assert.ErrorIs(t, err, errConverterBroken)
}

func Test_ResolveSingle_FoundNil_ReturnsConversionError(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		&queryContextStub{outcome: specquery.Found(nil)},
	)

	// assert
	assert.ErrorIs(t, err, specquery.ErrConversionFailed)
}

func Test_ResolveSingle_FoundTypedNil_ReturnsConversionError(t *testing.T) {
	testCases := []struct {
		name     string
		nullable bool
	}{
		{name: "required", nullable: false},
		{name: "nullable", nullable: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			converter := &converterStub{}
			resolver := givenResolver(t, converter)

			// act
			value, err := resolver.ResolveSingle(
				context.Background(),
				specquery.AttributeEquals("id", 1),
				givenMemberEntity(t),
				specquery.ReturnShapeOf[*member](tc.nullable),
				&queryContextStub{outcome: specquery.Found((*member)(nil))},
			)

			// assert
			assert.Nil(t, value)
			assert.ErrorIs(t, err, specquery.ErrConversionFailed)

			var conversionErr *specquery.ConversionError
			require.ErrorAs(t, err, &conversionErr)
			assert.Equal(t, reflect.TypeFor[*member](), conversionErr.Source)
			assert.Zero(t, converter.calls)
		})
	}
}

func Test_ResolveSingle_ConverterReturnsTypedNil_ReturnsConversionError(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{result: (*memberBadge)(nil)})

	// act
	value, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*memberBadge](false),
		&queryContextStub{outcome: specquery.Found(&member{ID: 1})},
	)

	// assert
	assert.Nil(t, value)
	assert.ErrorIs(t, err, specquery.ErrConversionFailed)
}

func Test_ResolveSingle_QueryContextCreatesNoQuery_Fails(t *testing.T) {
	// setup
	qc := &queryContextStub{outcome: specquery.Found(&member{ID: 1}), noQuery: true}
	resolver := givenResolver(t, &converterStub{})

	// act
	value, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("id", 1),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](false),
		qc,
	)

	// assert
	assert.Nil(t, value)
	assert.ErrorIs(t, err, specquery.ErrBuildingQueryFailed)
	assert.Zero(t, qc.callCount())
}

func Test_ResolveSingle_IsIdempotent(t *testing.T) {
	// setup
	ctx := context.Background()
	resolver := givenResolver(t, &converterStub{})
	found := &member{ID: 7, Name: "x"}
	qc := &queryContextStub{outcome: specquery.Found(found)}
	entity := givenMemberEntity(t)
	shape := specquery.ReturnShapeOf[*member](false)

	// act
	first, firstErr := resolver.ResolveSingle(ctx, specquery.AttributeEquals("id", 7), entity, shape, qc)
	second, secondErr := resolver.ResolveSingle(ctx, specquery.AttributeEquals("id", 7), entity, shape, qc)

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Same(t, first, second)
	assert.Equal(t, 2, qc.callCount(), "every call executes exactly once")
}

func Test_ResolveSingle_BuildsRestrictedQuerySelectingRoot(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})
	qc := &queryContextStub{outcome: specquery.Absent()}
	entity := givenMemberEntity(t)

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("name", "x"),
		entity,
		specquery.ReturnShapeOf[*member](true),
		qc,
	)

	// assert
	require.NoError(t, err)
	require.NotNil(t, qc.lastQuery)

	root, ok := qc.lastQuery.Selection()
	require.True(t, ok)
	assert.Equal(t, "member", root.Entity().Name())
	assert.False(t, specquery.IsEmptyPredicate(qc.lastQuery.Restriction()))
	assert.Contains(t, renderWhere(t, qc.lastQuery.Restriction()), `"members"."name" = 'x'`)
}

func Test_ResolveSingle_SpecificationError_IsWrapped(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})
	qc := &queryContextStub{}
	cause := errors.New("bad specification")

	spec := specquery.SpecificationFunc(func(specquery.Root, *specquery.CriteriaQuery, specquery.CriteriaBuilder) (specquery.Predicate, error) {
		return nil, cause
	})

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		spec,
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		qc,
	)

	// assert
	assert.ErrorIs(t, err, specquery.ErrBuildingPredicateFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, specquery.ErrInvalidArgument)
	assert.Zero(t, qc.callCount(), "nothing must be executed")
}

func Test_ResolveSingle_UnknownAttribute_IsWrapped(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		specquery.AttributeEquals("nickname", "x"),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		&queryContextStub{},
	)

	// assert
	assert.ErrorIs(t, err, specquery.ErrBuildingPredicateFailed)
	assert.ErrorIs(t, err, specquery.ErrUnknownAttribute)
}

func Test_ResolveSingle_NilPredicate_Fails(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})
	qc := &queryContextStub{}

	spec := specquery.SpecificationFunc(func(specquery.Root, *specquery.CriteriaQuery, specquery.CriteriaBuilder) (specquery.Predicate, error) {
		return nil, nil
	})

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		spec,
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		qc,
	)

	// assert
	assert.ErrorIs(t, err, specquery.ErrBuildingPredicateFailed)
	assert.ErrorIs(t, err, specquery.ErrNilPredicate)
	assert.Zero(t, qc.callCount())
}

func Test_ResolveSingle_InvalidArguments(t *testing.T) {
	var nilFunc specquery.SpecificationFunc

	testCases := []struct {
		name   string
		spec   specquery.Specification
		entity specquery.EntityType
		qc     specquery.QueryContext
	}{
		{name: "nil specification", spec: nil, entity: givenMemberEntity(t), qc: &queryContextStub{}},
		{name: "typed nil specification", spec: nilFunc, entity: givenMemberEntity(t), qc: &queryContextStub{}},
		{name: "nil query context", spec: specquery.Where(nil), entity: givenMemberEntity(t), qc: nil},
		{name: "zero entity", spec: specquery.Where(nil), entity: specquery.EntityType{}, qc: &queryContextStub{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			resolver := givenResolver(t, &converterStub{})

			// act
			_, err := resolver.ResolveSingle(context.Background(), tc.spec, tc.entity, specquery.ReturnShape{}, tc.qc)

			// assert
			assert.ErrorIs(t, err, specquery.ErrInvalidArgument)
		})
	}
}

func Test_ResolveSingle_QueryContextErrors_PassThrough(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{})
	cause := errors.Join(specquery.ErrQueryingFailed, context.DeadlineExceeded)

	// act
	_, err := resolver.ResolveSingle(
		context.Background(),
		specquery.Where(nil),
		givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true),
		&queryContextStub{err: cause},
	)

	// assert
	assert.Same(t, cause, err)
}

func Test_ResolveSingle_LogsOutcomes(t *testing.T) {
	// setup
	logger, logHandler := helper.NewSpyLogger()
	resolver := givenResolver(t, &converterStub{}, specquery.WithLogger(logger))
	entity := givenMemberEntity(t)

	// act
	_, _ = resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[*member](false), &queryContextStub{outcome: specquery.Found(&member{ID: 1})})
	_, _ = resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[*member](false), &queryContextStub{outcome: specquery.Absent()})
	_, _ = resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[*member](false), &queryContextStub{err: &specquery.IncorrectResultSizeError{ExpectedSize: 1, ActualSize: 2}})

	// assert
	assert.True(t, logHandler.HasInfoLog("specquery operation: resolve single").
		WithAttribute("entity", "member").
		WithAttribute("outcome", "found").
		WithDurationMS().
		Assert())

	assert.True(t, logHandler.HasInfoLog("specquery operation: required single result not found").
		WithAttribute("entity", "member").
		Assert())

	assert.True(t, logHandler.HasErrorLog("specquery operation: resolve single failed").
		WithAttribute("error_type", specquery.ErrorTypeMultiplicityViolation).
		WithAttributeKey("error").
		Assert())
}

func Test_ResolveSingle_ContextualLogger(t *testing.T) {
	// setup
	logger, logHandler := helper.NewSpyLogger()
	resolver := givenResolver(t, &converterStub{}, specquery.WithContextualLogger(logger))

	// act
	_, err := resolver.ResolveSingle(context.Background(), specquery.Where(nil), givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true), &queryContextStub{outcome: specquery.Absent()})

	// assert
	require.NoError(t, err)
	assert.True(t, logHandler.HasInfoLog("specquery operation: resolve single").
		WithAttribute("outcome", "absent").
		Assert())
}

func Test_ResolveSingle_RecordsMetrics(t *testing.T) {
	// setup
	metrics := helper.NewMetricsCollectorSpy()
	resolver := givenResolver(t, &converterStub{result: memberBadge{}}, specquery.WithMetrics(metrics))
	entity := givenMemberEntity(t)

	// act
	_, _ = resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[memberBadge](false), &queryContextStub{outcome: specquery.Found(&member{ID: 1})})
	_, _ = resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[*member](false), &queryContextStub{outcome: specquery.Absent()})

	// assert
	assert.True(t, metrics.HasDurationRecordForMetric("specquery_resolve_duration_seconds").
		WithStatus("success").
		WithLabel("operation", "resolve_single").
		Assert())

	assert.True(t, metrics.HasCounterRecordForMetric("specquery_resolve_outcomes_total").
		WithLabel("outcome", "converted").
		Assert())

	assert.True(t, metrics.HasCounterRecordForMetric("specquery_errors_total").
		WithStatus("error").
		WithErrorType(specquery.ErrorTypeEmptyResult).
		Assert())

	assert.Len(t, metrics.GetDurationRecords(), 2)
}

func Test_ResolveSingle_PrefersContextualMetrics(t *testing.T) {
	// setup
	metrics := helper.NewContextualMetricsCollectorSpy()
	resolver := givenResolver(t, &converterStub{}, specquery.WithMetrics(metrics))

	// act
	_, err := resolver.ResolveSingle(context.Background(), specquery.Where(nil), givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true), &queryContextStub{outcome: specquery.Absent()})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.GetContextualCallCount())
}

func Test_ResolveSingle_RecordsSpans(t *testing.T) {
	// setup
	tracing := helper.NewTracingCollectorSpy()
	resolver := givenResolver(t, conversion.NewService(), specquery.WithTracing(tracing))
	entity := givenMemberEntity(t)

	// act
	_, err := resolver.ResolveSingle(context.Background(), specquery.Where(nil), entity,
		specquery.ReturnShapeOf[*member](false), &queryContextStub{outcome: specquery.Absent()})

	// assert
	require.ErrorIs(t, err, specquery.ErrEmptyResult)
	assert.True(t, tracing.HasSpanRecordForName("specquery.resolve_single").
		WithStartAttribute("entity", "member").
		WithStartAttribute("nullable", "false").
		WithStartAttribute("return_type", "*specquery_test.member").
		WithStatus("error").
		WithEndAttribute("error_type", specquery.ErrorTypeEmptyResult).
		WithEndAttributeKey("duration_ms").
		Assert())
}

func Test_ResolveSingle_ClassifiesCancellation(t *testing.T) {
	// setup
	metrics := helper.NewMetricsCollectorSpy()
	resolver := givenResolver(t, &converterStub{}, specquery.WithMetrics(metrics))

	// act
	_, err := resolver.ResolveSingle(context.Background(), specquery.Where(nil), givenMemberEntity(t),
		specquery.ReturnShapeOf[*member](true), &queryContextStub{err: context.Canceled})

	// assert
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, metrics.HasCounterRecordForMetric("specquery_errors_total").
		WithErrorType(specquery.ErrorTypeCanceled).
		Assert())
}

func Test_Resolver_ConcurrentCalls(t *testing.T) {
	// setup
	resolver := givenResolver(t, &converterStub{}, specquery.WithMetrics(helper.NewMetricsCollectorSpy()))
	entity := givenMemberEntity(t)
	done := make(chan error)

	// act
	for i := range 16 {
		go func() {
			qc := &queryContextStub{outcome: specquery.Found(&member{ID: int64(i)})}
			value, err := resolver.ResolveSingle(context.Background(), specquery.AttributeEquals("id", i), entity,
				specquery.ReturnShapeOf[*member](false), qc)
			if err == nil && value.(*member).ID != int64(i) {
				err = errors.New("mixed up results")
			}
			done <- err
		}()
	}

	// assert
	for range 16 {
		assert.NoError(t, <-done)
	}
}

func givenResolver(t *testing.T, converter specquery.Converter, options ...specquery.Option) *specquery.Resolver {
	t.Helper()

	resolver, err := specquery.NewResolver(converter, options...)
	require.NoError(t, err)

	return resolver
}
