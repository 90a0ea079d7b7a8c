package specquery

import (
	"context"
	"reflect"
)

// ReturnShape describes what the caller expects back.
// A nil Type stands for a pointer to the entity struct.
type ReturnShape struct {
	Type     reflect.Type
	Nullable bool
}

// ReturnShapeOf builds a ReturnShape for T.
func ReturnShapeOf[T any](nullable bool) ReturnShape {
	return ReturnShape{Type: reflect.TypeFor[T](), Nullable: nullable}
}

// Outcome is the result of single-result execution: exactly one of Found or Absent.
type Outcome struct {
	value any
	found bool
}

// Found wraps the single matching entity.
func Found(value any) Outcome {
	return Outcome{value: value, found: true}
}

// Absent reports that no row matched.
func Absent() Outcome {
	return Outcome{}
}

func (o Outcome) IsFound() bool {
	return o.found
}

func (o Outcome) Value() (any, bool) {
	return o.value, o.found
}

// QueryContext is a live query-building session borrowed for one resolution call.
type QueryContext interface {
	CriteriaBuilder() CriteriaBuilder

	// CreateQuery starts a query producing instances of entity.
	CreateQuery(entity EntityType) *CriteriaQuery

	// SingleResult executes query once. Zero rows yield Absent, one row yields Found,
	// more rows yield an *IncorrectResultSizeError.
	SingleResult(ctx context.Context, query *CriteriaQuery) (Outcome, error)
}

// QueryContextProvider hands out the query context of the current unit of work.
type QueryContextProvider interface {
	CurrentQueryContext(ctx context.Context) (QueryContext, error)
}

// RepositoryOperations is the backing store handed to interceptors.
type RepositoryOperations interface {
	Dialect() string
}

// Converter coerces value into target, failing explicitly when it cannot.
// A successful result must be assignable to target.
type Converter interface {
	ConvertRequired(value any, target reflect.Type) (any, error)
}
