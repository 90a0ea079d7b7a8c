package specquery

import (
	"context"
	"fmt"
)

// MethodInvocation is one call of a repository method, as seen by an interceptor.
type MethodInvocation struct {
	Method     MethodDescriptor
	Parameters []any
}

// FindOneInterceptor implements repository methods of the form findOne(spec) by handing the
// first parameter to a Resolver.
type FindOneInterceptor struct {
	provider QueryContextProvider
	resolver *Resolver
	entities RootEntityResolver
}

// NewFindOneInterceptor requires operations to also be a QueryContextProvider.
func NewFindOneInterceptor(
	operations RepositoryOperations,
	resolver *Resolver,
	entities RootEntityResolver,
) (*FindOneInterceptor, error) {

	provider, ok := operations.(QueryContextProvider)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrUnsupportedOperations, operations)
	}

	if resolver == nil {
		return nil, ErrNilResolver
	}

	if entities == nil {
		return nil, ErrNilEntityResolver
	}

	return &FindOneInterceptor{
		provider: provider,
		resolver: resolver,
		entities: entities,
	}, nil
}

// Intercept resolves the specification passed as the first parameter of invocation.
// The query context is borrowed from the provider for this call only.
func (i *FindOneInterceptor) Intercept(ctx context.Context, invocation MethodInvocation) (any, error) {
	if len(invocation.Parameters) == 0 {
		return nil, fmt.Errorf("%w: method %s takes no parameters, expected an instance of %s",
			ErrInvalidArgument, invocation.Method, specificationTypeName)
	}

	spec, ok := invocation.Parameters[0].(Specification)
	if !ok || isNilSpecification(spec) {
		return nil, fmt.Errorf("%w: argument must be an instance of %s, got %T",
			ErrInvalidArgument, specificationTypeName, invocation.Parameters[0])
	}

	entity, err := i.entities.ResolveRootEntity(invocation.Method)
	if err != nil {
		return nil, err
	}

	qc, err := i.provider.CurrentQueryContext(ctx)
	if err != nil {
		return nil, err
	}

	shape := ReturnShape{
		Type:     invocation.Method.ReturnType,
		Nullable: invocation.Method.Nullable,
	}

	return i.resolver.ResolveSingle(ctx, spec, entity, shape, qc)
}
