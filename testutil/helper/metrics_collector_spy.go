package helper

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

// MetricsCollectorSpy is a specquery.MetricsCollector that captures every call for testing.
type MetricsCollectorSpy struct {
	mu              sync.Mutex
	durationRecords []SpyMetricRecord
	counterRecords  []SpyMetricRecord
	valueRecords    []SpyMetricRecord
}

// SpyMetricRecord is one recorded metric call. Duration is set for durations, Value for values.
type SpyMetricRecord struct {
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.durationRecords = append(s.durationRecords, SpyMetricRecord{Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterRecords = append(s.counterRecords, SpyMetricRecord{Metric: metric, Labels: maps.Clone(labels)})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.valueRecords = append(s.valueRecords, SpyMetricRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// GetDurationRecords returns a copy of all captured duration records.
func (s *MetricsCollectorSpy) GetDurationRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyMetricRecord(nil), s.durationRecords...)
}

// GetCounterRecords returns a copy of all captured counter records.
func (s *MetricsCollectorSpy) GetCounterRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyMetricRecord(nil), s.counterRecords...)
}

// GetValueRecords returns a copy of all captured value records.
func (s *MetricsCollectorSpy) GetValueRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyMetricRecord(nil), s.valueRecords...)
}

// HasDurationRecordForMetric starts a fluent chain on the first duration record for metric.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return firstRecord(s.GetDurationRecords(), metric)
}

// HasCounterRecordForMetric starts a fluent chain on the first counter record for metric.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return firstRecord(s.GetCounterRecords(), metric)
}

// HasValueRecordForMetric starts a fluent chain on the first value record for metric.
func (s *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return firstRecord(s.GetValueRecords(), metric)
}

func firstRecord(records []SpyMetricRecord, metric string) *MetricRecordMatcher {
	for _, record := range records {
		if record.Metric == metric {
			return &MetricRecordMatcher{record: record, found: true}
		}
	}

	return &MetricRecordMatcher{}
}

// MetricRecordMatcher provides a fluent interface for checking metric records.
type MetricRecordMatcher struct {
	record SpyMetricRecord
	found  bool
}

// WithLabel checks if the record has the label with the given value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	if m.found && m.record.Labels[key] != value {
		m.found = false
	}

	return m
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.WithLabel("error_type", errorType)
}

// WithValue checks the recorded value of a value record.
func (m *MetricRecordMatcher) WithValue(value float64) *MetricRecordMatcher {
	if m.found && m.record.Value != value {
		m.found = false
	}

	return m
}

// Assert returns true if all conditions in the fluent chain were met.
func (m *MetricRecordMatcher) Assert() bool {
	return m.found
}

// ContextualMetricsCollectorSpy additionally implements specquery.ContextualMetricsCollector
// and counts the calls that arrived through the context-aware methods.
type ContextualMetricsCollectorSpy struct {
	*MetricsCollectorSpy

	contextualCalls int
	mu              sync.Mutex
}

func NewContextualMetricsCollectorSpy() *ContextualMetricsCollectorSpy {
	return &ContextualMetricsCollectorSpy{MetricsCollectorSpy: NewMetricsCollectorSpy()}
}

func (s *ContextualMetricsCollectorSpy) RecordDurationContext(
	_ context.Context,
	metric string,
	duration time.Duration,
	labels map[string]string,
) {

	s.countContextualCall()
	s.RecordDuration(metric, duration, labels)
}

func (s *ContextualMetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.countContextualCall()
	s.IncrementCounter(metric, labels)
}

func (s *ContextualMetricsCollectorSpy) RecordValueContext(
	_ context.Context,
	metric string,
	value float64,
	labels map[string]string,
) {

	s.countContextualCall()
	s.RecordValue(metric, value, labels)
}

// GetContextualCallCount returns how many calls came through the context-aware methods.
func (s *ContextualMetricsCollectorSpy) GetContextualCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.contextualCalls
}

func (s *ContextualMetricsCollectorSpy) countContextualCall() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contextualCalls++
}

var (
	_ specquery.MetricsCollector           = (*MetricsCollectorSpy)(nil)
	_ specquery.ContextualMetricsCollector = (*ContextualMetricsCollectorSpy)(nil)
)
