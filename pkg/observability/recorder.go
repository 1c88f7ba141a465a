package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics = &PrometheusMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records exploration events.
type Metrics interface {
	RecordRun(ctx context.Context, duration time.Duration, err error)
	RecordOracleCall(ctx context.Context, provider string, duration time.Duration, err error)
	RecordAdmission(ctx context.Context, outcome string)
	RecordStop(ctx context.Context, reason string)
}

// PrometheusMetrics is the OpenTelemetry-backed Metrics implementation. The
// zero value is a no-op.
type PrometheusMetrics struct {
	runDuration    metric.Float64Histogram
	runsTotal      metric.Int64Counter
	runErrorsTotal metric.Int64Counter

	oracleDuration metric.Float64Histogram
	oracleCalls    metric.Int64Counter
	oracleErrors   metric.Int64Counter

	admissions metric.Int64Counter
	stops      metric.Int64Counter
}

func (m *PrometheusMetrics) RecordRun(ctx context.Context, duration time.Duration, err error) {
	if m == nil || m.runsTotal == nil {
		return
	}

	m.runDuration.Record(ctx, duration.Seconds())
	m.runsTotal.Add(ctx, 1)
	if err != nil {
		m.runErrorsTotal.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordOracleCall(ctx context.Context, provider string, duration time.Duration, err error) {
	if m == nil || m.oracleCalls == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.oracleDuration.Record(ctx, duration.Seconds(), attrs)
	m.oracleCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.oracleErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordAdmission(ctx context.Context, outcome string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *PrometheusMetrics) RecordStop(ctx context.Context, reason string) {
	if m == nil || m.stops == nil {
		return
	}
	m.stops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

var _ Metrics = (*PrometheusMetrics)(nil)
