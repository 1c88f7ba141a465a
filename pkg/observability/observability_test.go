package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueMetricsAreNoop(t *testing.T) {
	var m *PrometheusMetrics
	ctx := context.Background()

	// None of these may panic on a nil or empty instance.
	m.RecordRun(ctx, time.Second, nil)
	m.RecordOracleCall(ctx, "openai", time.Second, nil)
	m.RecordAdmission(ctx, "accepted")
	m.RecordStop(ctx, "boundary")

	empty := &PrometheusMetrics{}
	empty.RecordRun(ctx, time.Second, nil)
	empty.RecordStop(ctx, "limit")
}

func TestInitMetricsDisabled(t *testing.T) {
	m, err := InitMetrics(context.Background(), false)
	require.NoError(t, err)
	assert.NotNil(t, m)

	m.RecordRun(context.Background(), time.Millisecond, nil)
}

func TestInitMetricsEnabled(t *testing.T) {
	m, err := InitMetrics(context.Background(), true)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, 250*time.Millisecond, nil)
	m.RecordOracleCall(ctx, "gemini", 100*time.Millisecond, assert.AnError)
	m.RecordAdmission(ctx, "rejected_duplicate")
	m.RecordStop(ctx, "no_flows")
}

func TestGlobalMetricsNeverNil(t *testing.T) {
	assert.NotNil(t, GetGlobalMetrics())

	m := &PrometheusMetrics{}
	SetGlobalMetrics(m)
	assert.Equal(t, Metrics(m), GetGlobalMetrics())
}

func TestZeroValueTracerIsNoop(t *testing.T) {
	var tr *Tracer
	ctx := context.Background()

	// Spans on a nil or empty tracer must be valid no-ops.
	_, span := tr.StartRun(ctx, 1)
	EndSpan(span, assert.AnError)
	assert.NoError(t, tr.Shutdown(ctx))

	empty := &Tracer{}
	_, span = empty.StartStage(ctx, "grade")
	EndSpan(span, nil)
	_, span = empty.StartOracleCall(ctx, "openai", "axis_grade")
	EndSpan(span, nil)
	assert.NoError(t, empty.Shutdown(ctx))
}

func TestInitTracerDisabled(t *testing.T) {
	tr, err := InitTracer(context.Background(), TracerConfig{})
	require.NoError(t, err)
	require.NotNil(t, tr)

	_, span := tr.StartRun(context.Background(), 0)
	span.End()
}

func TestInitTracerStdout(t *testing.T) {
	tr, err := InitTracer(context.Background(), TracerConfig{
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 1,
	})
	require.NoError(t, err)

	_, span := tr.StartStage(context.Background(), "extract")
	EndSpan(span, assert.AnError)
	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestInitTracerUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracerConfig{
		Enabled:  true,
		Exporter: "zipkin",
	})
	require.Error(t, err)
}

func TestGlobalTracerNeverNil(t *testing.T) {
	assert.NotNil(t, GetGlobalTracer())

	tr := &Tracer{}
	SetGlobalTracer(tr)
	assert.Equal(t, tr, GetGlobalTracer())
}
