package helper

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler that captures log records for testing.
// slog.New(spy) serves as both specquery.Logger and specquery.ContextualLogger.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy, optionally echoing records to stdout as JSON.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{logToStdout: logToStdout}
}

// NewSpyLogger returns a debug level logger writing into a new spy.
func NewSpyLogger() (*slog.Logger, *LogHandlerSpy) {
	spy := NewLogHandlerSpy(false)
	return slog.New(spy), spy
}

func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record.Clone())

	if s.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

func (s *LogHandlerSpy) Enabled(context.Context, slog.Level) bool {
	return true
}

func (s *LogHandlerSpy) WithAttrs([]slog.Attr) slog.Handler {
	return s
}

func (s *LogHandlerSpy) WithGroup(string) slog.Handler {
	return s
}

// GetRecordCount returns the number of captured log records.
func (s *LogHandlerSpy) GetRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// GetRecords returns a copy of all captured log records.
func (s *LogHandlerSpy) GetRecords() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]slog.Record, len(s.records))
	copy(records, s.records)

	return records
}

// Reset clears all captured log records.
func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

// HasLog starts a fluent chain on the first record with level and message.
func (s *LogHandlerSpy) HasLog(level slog.Level, message string) *SpyLogRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Level == level && s.records[i].Message == message {
			record := s.records[i]
			return &SpyLogRecordMatcher{record: &record, found: true}
		}
	}

	return &SpyLogRecordMatcher{}
}

func (s *LogHandlerSpy) HasDebugLog(message string) *SpyLogRecordMatcher {
	return s.HasLog(slog.LevelDebug, message)
}

func (s *LogHandlerSpy) HasInfoLog(message string) *SpyLogRecordMatcher {
	return s.HasLog(slog.LevelInfo, message)
}

func (s *LogHandlerSpy) HasWarnLog(message string) *SpyLogRecordMatcher {
	return s.HasLog(slog.LevelWarn, message)
}

func (s *LogHandlerSpy) HasErrorLog(message string) *SpyLogRecordMatcher {
	return s.HasLog(slog.LevelError, message)
}

// CountLevel counts the records at level.
func (s *LogHandlerSpy) CountLevel(level slog.Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if record.Level == level {
			count++
		}
	}

	return count
}

// SpyLogRecordMatcher provides a fluent interface for checking log record attributes.
type SpyLogRecordMatcher struct {
	record *slog.Record
	found  bool
}

// WithDurationMS checks for a non-negative duration_ms attribute.
func (m *SpyLogRecordMatcher) WithDurationMS() *SpyLogRecordMatcher {
	return m.with("duration_ms", func(value slog.Value) bool {
		switch value.Kind() {
		case slog.KindFloat64:
			return value.Float64() >= 0
		case slog.KindInt64:
			return value.Int64() >= 0
		default:
			return false
		}
	})
}

// WithAttribute checks for an attribute whose string form equals expected.
func (m *SpyLogRecordMatcher) WithAttribute(key string, expected string) *SpyLogRecordMatcher {
	return m.with(key, func(value slog.Value) bool {
		return value.String() == expected
	})
}

// WithAttributeKey checks that an attribute named key exists.
func (m *SpyLogRecordMatcher) WithAttributeKey(key string) *SpyLogRecordMatcher {
	return m.with(key, func(slog.Value) bool {
		return true
	})
}

func (m *SpyLogRecordMatcher) with(key string, accept func(slog.Value) bool) *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	matched := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key && accept(attr.Value) {
			matched = true
			return false
		}

		return true
	})

	m.found = matched

	return m
}

// Assert returns true if all conditions in the fluent chain were met.
func (m *SpyLogRecordMatcher) Assert() bool {
	return m.found
}
