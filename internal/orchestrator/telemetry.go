package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// Outcome labels for checkin.outcome.total.
const (
	OutcomeSuccess                = "success"
	OutcomeNoChanges              = "no_changes"
	OutcomePolicyRejected         = "policy_rejected"
	OutcomeOverrideReasonRequired = "override_reason_required"
	OutcomeCheckinFailed          = "checkin_failed"
	OutcomeError                  = "error"
)

// Metrics provides OpenTelemetry metrics for checkins.
type Metrics struct {
	outcomeTotal        metric.Int64Counter
	policyFailuresTotal metric.Int64Counter
	overridesTotal      metric.Int64Counter
	duration            metric.Float64Histogram

	initialized bool
}

// NewMetrics creates a new Metrics instance with the provided meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.outcomeTotal, err = meter.Int64Counter(
		"checkin.outcome.total",
		metric.WithDescription("Total number of checkin attempts by outcome"),
		metric.WithUnit("{checkin}"),
	)
	if err != nil {
		return nil, err
	}

	m.policyFailuresTotal, err = meter.Int64Counter(
		"checkin.policy_failures.total",
		metric.WithDescription("Total number of policy failures reported"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.overridesTotal, err = meter.Int64Counter(
		"checkin.overrides.total",
		metric.WithDescription("Total number of checkins forced past failed policies"),
		metric.WithUnit("{checkin}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"checkin.duration.seconds",
		metric.WithDescription("Duration of a checkin in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordPolicyFailures counts failures per policy.
func (m *Metrics) RecordPolicyFailures(ctx context.Context, failures []PolicyFailure) {
	if m == nil || !m.initialized {
		return
	}
	for _, f := range failures {
		m.policyFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", f.Policy)))
	}
}

// RecordOverride counts a forced checkin.
func (m *Metrics) RecordOverride(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.overridesTotal.Add(ctx, 1)
}

// RecordOutcome records the terminal outcome and duration of a checkin.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.outcomeTotal.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

// Tracer returns a tracer for the orchestrator package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// outcomeOf maps a Checkin error to its outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch KindOf(err) {
	case KindNoChanges:
		return OutcomeNoChanges
	case KindPolicyRejected:
		return OutcomePolicyRejected
	case KindOverrideReasonRequired:
		return OutcomeOverrideReasonRequired
	case KindCheckinFailed:
		return OutcomeCheckinFailed
	default:
		return OutcomeError
	}
}
