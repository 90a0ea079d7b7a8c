package specquery

import "context"

// ConsistencyLevel defines which database node a query context may read from.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary database. This is the default,
	// a findOne inside a unit of work must see that unit's own writes.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica database when one is configured.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "specquery.consistency_level"

// WithStrongConsistency returns a context whose queries go to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context whose queries may go to a replica database.
//
// Example usage:
//
//	ctx = specquery.WithEventualConsistency(ctx)
//	reader, err := specquery.FindOne[*Reader](ctx, resolver, spec, readers, qc, true)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context, defaulting to StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
