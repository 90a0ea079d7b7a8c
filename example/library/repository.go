package library

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

const repositoryName = "ReaderRepository"

// ErrReaderNotFound is returned by FindReader and FindReaderView when no reader matches.
var ErrReaderNotFound = errors.New("reader not found")

var (
	findReaderMethod = specquery.MethodDescriptor{
		Repository: repositoryName,
		Name:       "FindReader",
		ReturnType: reflect.TypeFor[*Reader](),
	}

	findReaderViewMethod = specquery.MethodDescriptor{
		Repository: repositoryName,
		Name:       "FindReaderView",
		RootEntity: ReaderEntityName,
		ReturnType: reflect.TypeFor[ReaderView](),
	}

	findOptionalReaderMethod = specquery.MethodDescriptor{
		Repository: repositoryName,
		Name:       "FindOptionalReader",
		ReturnType: reflect.TypeFor[*Reader](),
		Nullable:   true,
	}
)

// ReaderRepository looks up single readers by specification.
type ReaderRepository struct {
	interceptor *specquery.FindOneInterceptor
}

// NewReaderRepository wires a FindOneInterceptor for the Reader entity.
// operations must also be a specquery.QueryContextProvider, like *sqlengine.Provider.
func NewReaderRepository(operations specquery.RepositoryOperations, resolver *specquery.Resolver) (*ReaderRepository, error) {
	readers, err := NewReaderEntityType()
	if err != nil {
		return nil, err
	}

	entities, err := specquery.NewEntityRegistry(readers)
	if err != nil {
		return nil, err
	}

	interceptor, err := specquery.NewFindOneInterceptor(operations, resolver, entities)
	if err != nil {
		return nil, err
	}

	return &ReaderRepository{interceptor: interceptor}, nil
}

// FindReader returns the single reader matching spec.
func (r *ReaderRepository) FindReader(ctx context.Context, spec specquery.Specification) (*Reader, error) {
	result, err := r.find(ctx, findReaderMethod, spec)
	if err != nil {
		return nil, err
	}

	return as[*Reader](result)
}

// FindReaderView returns the single reader matching spec as a ReaderView.
func (r *ReaderRepository) FindReaderView(ctx context.Context, spec specquery.Specification) (ReaderView, error) {
	result, err := r.find(ctx, findReaderViewMethod, spec)
	if err != nil {
		return ReaderView{}, err
	}

	return as[ReaderView](result)
}

// FindOptionalReader returns the single reader matching spec, or nil if there is none.
func (r *ReaderRepository) FindOptionalReader(ctx context.Context, spec specquery.Specification) (*Reader, error) {
	result, err := r.interceptor.Intercept(ctx, specquery.MethodInvocation{
		Method:     findOptionalReaderMethod,
		Parameters: []any{spec},
	})
	if err != nil {
		return nil, err
	}

	return as[*Reader](result)
}

func (r *ReaderRepository) find(ctx context.Context, method specquery.MethodDescriptor, spec specquery.Specification) (any, error) {
	result, err := r.interceptor.Intercept(ctx, specquery.MethodInvocation{
		Method:     method,
		Parameters: []any{spec},
	})

	if errors.Is(err, specquery.ErrEmptyResult) {
		return nil, errors.Join(ErrReaderNotFound, err)
	}

	return result, err
}

func as[T any](result any) (T, error) {
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unexpected result %T", specquery.ErrConversionFailed, result)
	}

	return typed, nil
}
