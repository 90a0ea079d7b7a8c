package sqlengine

import (
	"fmt"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

// Option defines a functional option for configuring a Provider.
type Option func(*Provider) error

// WithDialect sets the goqu dialect used to render SQL, "postgres" or "sqlite3".
func WithDialect(dialect string) Option {
	return func(p *Provider) error {
		switch dialect {
		case DialectPostgres, DialectSQLite:
			p.dialect = dialect
			return nil
		default:
			return fmt.Errorf("%w: %q", specquery.ErrUnsupportedDialect, dialect)
		}
	}
}

// WithLogger sets the logger for the Provider.
//
// Debug level: SQL queries with execution timing (development use)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger specquery.Logger) Option {
	return func(p *Provider) error {
		p.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Provider.
func WithContextualLogger(logger specquery.ContextualLogger) Option {
	return func(p *Provider) error {
		p.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Provider, which receives
// query durations and fetched row counts.
func WithMetrics(collector specquery.MetricsCollector) Option {
	return func(p *Provider) error {
		p.metricsCollector = collector
		return nil
	}
}
