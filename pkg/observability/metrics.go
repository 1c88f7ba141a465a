// Package observability exposes exploration metrics through the OpenTelemetry
// Prometheus exporter.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMetrics builds the Prometheus-backed metrics set. When disabled it
// returns an empty (no-op) instance.
func InitMetrics(ctx context.Context, enabled bool) (*PrometheusMetrics, error) {
	if !enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("upchain"),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	meter := meterProvider.Meter("upchain")

	runDuration, err := meter.Float64Histogram(
		"upchain_run_duration_seconds",
		metric.WithDescription("Requirement run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	runsTotal, err := meter.Int64Counter(
		"upchain_runs_total",
		metric.WithDescription("Total requirement runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	runErrors, err := meter.Int64Counter(
		"upchain_run_errors_total",
		metric.WithDescription("Total failed requirement runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run errors counter: %w", err)
	}

	oracleDuration, err := meter.Float64Histogram(
		"upchain_oracle_call_duration_seconds",
		metric.WithDescription("Oracle call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle duration histogram: %w", err)
	}

	oracleCalls, err := meter.Int64Counter(
		"upchain_oracle_calls_total",
		metric.WithDescription("Total oracle calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle calls counter: %w", err)
	}

	oracleErrors, err := meter.Int64Counter(
		"upchain_oracle_errors_total",
		metric.WithDescription("Total failed oracle calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle errors counter: %w", err)
	}

	admissions, err := meter.Int64Counter(
		"upchain_admissions_total",
		metric.WithDescription("Requirement admission decisions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admissions counter: %w", err)
	}

	stops, err := meter.Int64Counter(
		"upchain_stops_total",
		metric.WithDescription("Recursion stops by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stops counter: %w", err)
	}

	return &PrometheusMetrics{
		runDuration:    runDuration,
		runsTotal:      runsTotal,
		runErrorsTotal: runErrors,
		oracleDuration: oracleDuration,
		oracleCalls:    oracleCalls,
		oracleErrors:   oracleErrors,
		admissions:     admissions,
		stops:          stops,
	}, nil
}
