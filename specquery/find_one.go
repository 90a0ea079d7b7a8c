package specquery

import (
	"context"
	"fmt"
	"reflect"
)

// FindOne is the typed form of Resolver.ResolveSingle: the declared return type is T.
// With nullable set and no match it returns the zero value of T and a nil error.
func FindOne[T any](
	ctx context.Context,
	r *Resolver,
	spec Specification,
	entity EntityType,
	qc QueryContext,
	nullable bool,
) (T, error) {

	var zero T

	if r == nil {
		return zero, ErrNilResolver
	}

	value, err := r.ResolveSingle(ctx, spec, entity, ReturnShapeOf[T](nullable), qc)
	if err != nil {
		return zero, err
	}

	if value == nil {
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		return zero, &ConversionError{
			Source: reflect.TypeOf(value),
			Target: reflect.TypeFor[T](),
			Err:    fmt.Errorf("resolver returned %T", value),
		}
	}

	return typed, nil
}
