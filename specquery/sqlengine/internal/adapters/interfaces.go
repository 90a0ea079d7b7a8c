package adapters

import "context"

// DBAdapter defines the interface for the database operations needed by the query context.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
