package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/logging"
)

// Deps are the collaborators and sinks an Orchestrator uses.
type Deps struct {
	Discoverer Discoverer
	Evaluator  Evaluator
	Submitter  Submitter

	// Output receives the "[ERROR] Policy:" diagnostic lines. Nil discards them.
	Output io.Writer

	Logger  *logging.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Orchestrator runs one checkin through the discovery, evaluation and
// submission gates.
type Orchestrator struct {
	discoverer Discoverer
	evaluator  Evaluator
	submitter  Submitter
	out        io.Writer
	logger     *logging.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	opts       Options

	progressCallback ProgressCallback
}

// New creates an Orchestrator for a single set of options.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Discoverer == nil {
		return nil, ErrNilDiscoverer
	}
	if deps.Evaluator == nil {
		return nil, ErrNilEvaluator
	}
	if deps.Submitter == nil {
		return nil, ErrNilSubmitter
	}

	o := &Orchestrator{
		discoverer: deps.Discoverer,
		evaluator:  deps.Evaluator,
		submitter:  deps.Submitter,
		out:        deps.Output,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		opts:       opts,
	}
	if o.out == nil {
		o.out = io.Discard
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.tracer == nil {
		o.tracer = Tracer()
	}
	return o, nil
}

// OnProgress sets the progress callback
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progressCallback = callback
}

// Checkin runs the gates in order and returns the new changeset id.
// Every gate failure is an *Error; collaborator I/O errors from discovery
// and evaluation are returned wrapped.
func (o *Orchestrator) Checkin(ctx context.Context) (int, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "checkin.Checkin",
		trace.WithAttributes(attribute.Bool("checkin.forced", o.opts.Force)))
	defer span.End()

	id, err := o.run(ctx, span)

	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("checkin.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Info(ctx, "checkin did not complete", zap.String("outcome", outcome), zap.Error(err))
	} else {
		span.SetAttributes(attribute.Int("checkin.changeset_id", id))
		span.SetStatus(codes.Ok, "")
		o.logger.Info(ctx, "checkin complete", zap.Int("changeset", id))
	}
	o.metrics.RecordOutcome(ctx, outcome, time.Since(start))

	return id, err
}

func (o *Orchestrator) run(ctx context.Context, span trace.Span) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o.reportProgress(StageStart, "discovering pending changes")

	pending, err := o.discoverer.PendingChanges(ctx)
	if err != nil {
		return 0, fmt.Errorf("discover pending changes: %w", err)
	}
	span.SetAttributes(attribute.Int("checkin.pending", len(pending)))
	if len(pending) == 0 {
		o.logger.Debug(ctx, "discovery gate: nothing pending")
		return 0, &Error{Kind: KindNoChanges}
	}
	o.logger.Debug(ctx, "discovery gate passed", zap.Int("pending", len(pending)))
	o.reportProgress(StageDiscovered, fmt.Sprintf("%d pending changes", len(pending)))

	result, err := o.evaluator.Evaluate(ctx, EvaluationRequest{
		Flags:         o.opts.EvaluationFlags(),
		Pending:       pending,
		Selected:      pending,
		Comment:       o.opts.Comment,
		Notes:         o.opts.Notes,
		WorkItems:     o.opts.WorkItems,
		TargetVersion: o.opts.TargetVersion,
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate policies: %w", err)
	}
	if result == nil {
		result = &EvaluationResult{}
	}
	span.SetAttributes(attribute.Int("checkin.policy_failures", len(result.Failures)))
	o.reportProgress(StageEvaluated, fmt.Sprintf("%d policy failures", len(result.Failures)))

	var override *OverrideRecord
	if result.HasFailures() {
		o.metrics.RecordPolicyFailures(ctx, result.Failures)
		for _, f := range result.Failures {
			o.writeFailure(ctx, f)
		}

		if !o.opts.Force {
			o.logger.Debug(ctx, "policy gate rejected checkin", zap.Strings("policies", result.PolicyNames()))
			return 0, &Error{Kind: KindPolicyRejected, Failures: result.Failures}
		}
		if !o.opts.hasReason() {
			o.logger.Debug(ctx, "override requested without reason", zap.Strings("policies", result.PolicyNames()))
			return 0, &Error{Kind: KindOverrideReasonRequired, Failures: result.Failures}
		}

		override = &OverrideRecord{
			Reason:   o.opts.OverrideReason,
			Policies: result.PolicyNames(),
		}
		o.metrics.RecordOverride(ctx)
		o.logger.Warn(ctx, "policy override",
			zap.String("reason", override.Reason),
			zap.Strings("policies", override.Policies))
	} else {
		o.logger.Debug(ctx, "policy gate passed")
	}

	selected := result.Selected
	if selected == nil {
		selected = pending
	}
	if len(selected) == 0 {
		o.logger.Debug(ctx, "evaluator excluded every pending change")
		return 0, &Error{Kind: KindNoChanges}
	}
	o.reportProgress(StageAccepted, fmt.Sprintf("submitting %d changes", len(selected)))

	id, err := o.submitter.Submit(ctx, Submission{
		Changes:     selected,
		Comment:     o.opts.Comment,
		Notes:       o.opts.Notes,
		WorkItems:   o.opts.WorkItems,
		Override:    override,
		Forced:      o.opts.Force,
		BaseVersion: o.opts.TargetVersion,
	})
	if err != nil {
		return 0, &Error{Kind: KindCheckinFailed, Failures: result.Failures, Err: err}
	}
	if id <= 0 {
		o.logger.Debug(ctx, "submission returned non-positive id", zap.Int("id", id))
		return 0, &Error{Kind: KindCheckinFailed, Failures: result.Failures}
	}
	o.reportProgress(StageSubmitted, fmt.Sprintf("changeset %d", id))

	return id, nil
}

// writeFailure emits one diagnostic line for a policy failure.
func (o *Orchestrator) writeFailure(ctx context.Context, f PolicyFailure) {
	if _, err := io.WriteString(o.out, f.Diagnostic()); err != nil {
		o.logger.Warn(ctx, "failed to write policy diagnostic", zap.String("policy", f.Policy), zap.Error(err))
	}
}

// reportProgress sends progress updates to the callback
func (o *Orchestrator) reportProgress(stage Stage, msg string) {
	if o.progressCallback != nil {
		o.progressCallback(Progress{Stage: stage, Message: msg})
	}
}
