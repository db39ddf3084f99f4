package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestCheckin_Telemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	sub := &MockSubmitter{}
	sub.On("Submit", mock.Anything, mock.Anything).Return(21, nil)

	o, err := New(Deps{
		Discoverer: pending("a", "b"),
		Evaluator:  failing(noWorkItems),
		Submitter:  sub,
		Metrics:    metrics,
		Tracer:     tp.Tracer(InstrumentationName),
	}, Options{Force: true, OverrideReason: "approved"})
	require.NoError(t, err)

	_, err = o.Checkin(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "checkin.Checkin", spans[0].Name())
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(2), attrs["checkin.pending"].AsInt64())
	assert.Equal(t, int64(1), attrs["checkin.policy_failures"].AsInt64())
	assert.Equal(t, OutcomeSuccess, attrs["checkin.outcome"].AsString())
	assert.True(t, attrs["checkin.forced"].AsBool())

	got := collect(t, reader)

	outcomes, ok := got["checkin.outcome.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, outcomes.DataPoints, 1)
	assert.Equal(t, int64(1), outcomes.DataPoints[0].Value)
	v, _ := outcomes.DataPoints[0].Attributes.Value("outcome")
	assert.Equal(t, OutcomeSuccess, v.AsString())

	failures, ok := got["checkin.policy_failures.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failures.DataPoints, 1)
	assert.Equal(t, int64(1), failures.DataPoints[0].Value)

	overrides, ok := got["checkin.overrides.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), overrides.DataPoints[0].Value)

	_, ok = got["checkin.duration.seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, OutcomeNoChanges, outcomeOf(ErrNoChanges))
	assert.Equal(t, OutcomePolicyRejected, outcomeOf(ErrPolicyRejected))
	assert.Equal(t, OutcomeOverrideReasonRequired, outcomeOf(ErrOverrideReasonRequired))
	assert.Equal(t, OutcomeCheckinFailed, outcomeOf(ErrCheckinFailed))
	assert.Equal(t, OutcomeError, outcomeOf(context.Canceled))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordOutcome(context.Background(), OutcomeSuccess, 0)
	m.RecordOverride(context.Background())
	m.RecordPolicyFailures(context.Background(), []PolicyFailure{noWorkItems})
}
