// Package zapadapters lets a zap logger serve as specquery.Logger and specquery.ContextualLogger.
package zapadapters

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	fieldTraceID = "trace_id"
	fieldSpanID  = "span_id"
)

// Logger adapts a zap.SugaredLogger. The slog style key/value args used across specquery are
// handed to the sugared ...w methods unchanged.
// The context variants add trace_id and span_id when the context carries a valid span.
type Logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger wraps logger. A nil logger is replaced by zap.NewNop.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Logger{sugar: logger.Sugar()}
}

// NewDevelopmentLogger builds a zap development logger, which writes debug and above to stderr.
func NewDevelopmentLogger() (*Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	return NewLogger(logger), nil
}

func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Debugw(msg, withTraceFields(ctx, args)...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Infow(msg, withTraceFields(ctx, args)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Warnw(msg, withTraceFields(ctx, args)...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Errorw(msg, withTraceFields(ctx, args)...)
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func withTraceFields(ctx context.Context, args []any) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return args
	}

	withTrace := make([]any, 0, len(args)+4)
	withTrace = append(withTrace, args...)

	return append(withTrace,
		fieldTraceID, spanCtx.TraceID().String(),
		fieldSpanID, spanCtx.SpanID().String(),
	)
}
