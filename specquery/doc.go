// Package specquery provides the core abstractions for resolving a single entity
// from a composable specification.
//
// A Specification turns a query-builder context (the entity Root, the CriteriaQuery
// under construction and a CriteriaBuilder) into a boolean Predicate. The Resolver
// builds exactly one query from it, executes that query once for a single result
// through a borrowed QueryContext, and shapes the outcome for the caller:
//
//   - one match: the entity, or its coerced form when the declared return type differs
//   - no match, nullable return: the zero value of the declared type
//   - no match, required return: an *EmptyResultError expecting one result
//   - more than one match: an *IncorrectResultSizeError from the query context
//
// Key types:
//   - Specification: opaque predicate factory supplied per call
//   - EntityType: the mapped entity (table, columns, Go struct type)
//   - ReturnShape: declared return type plus nullability
//   - Resolver: the query resolution engine
//   - FindOneInterceptor: dispatcher for repository methods of the form findOne(spec)
//
// Common usage pattern:
//
//	readers, _ := specquery.NewEntityType("Reader", "readers", Reader{})
//	resolver, _ := specquery.NewResolver(conversion.NewService())
//
//	spec := specquery.AllOf(
//		specquery.AttributeEquals("email", "jane@example.com"),
//		specquery.AttributeEquals("status", "active"),
//	)
//
//	qc, _ := provider.CurrentQueryContext(ctx)
//	reader, err := specquery.FindOne[*Reader](ctx, resolver, spec, readers, qc, false)
//	if errors.Is(err, specquery.ErrEmptyResult) {
//		// no such reader
//	}
package specquery
