// Package policy evaluates checkin policies against a proposed change set.
//
// Policies run in configuration order and their failures are concatenated
// in that order. Exclusion patterns narrow the selected changes before any
// policy sees them.
package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// Policy names.
const (
	NameWorkItems      = "work-items"
	NameComment        = "comment"
	NameCheckinNotes   = "checkin-notes"
	NameMaxChanges     = "max-changes"
	NameForbiddenPaths = "forbidden-paths"
	NameSecrets        = "secrets"
)

// Policy is a single checkin rule.
type Policy interface {
	Name() string

	// Check returns zero or more failures for the request. It must not
	// modify the request slices.
	Check(ctx context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error)
}

// Evaluator runs a fixed, ordered list of policies.
type Evaluator struct {
	policies []Policy
	exclude  *PathMatcher
	logger   *logging.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExclude drops matching changes from the selected set.
func WithExclude(m *PathMatcher) Option {
	return func(e *Evaluator) { e.exclude = m }
}

// WithLogger sets the evaluator logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator creates an evaluator running policies in the given order.
func NewEvaluator(policies []Policy, opts ...Option) *Evaluator {
	e := &Evaluator{
		policies: append([]Policy(nil), policies...),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policies returns the configured policy names in evaluation order.
func (e *Evaluator) Policies() []string {
	names := make([]string, 0, len(e.policies))
	for _, p := range e.policies {
		names = append(names, p.Name())
	}
	return names
}

// ExcludePatterns returns the patterns that drop changes from the selection.
func (e *Evaluator) ExcludePatterns() []string {
	return e.exclude.Patterns()
}

// Evaluate implements orchestrator.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, req orchestrator.EvaluationRequest) (*orchestrator.EvaluationResult, error) {
	selected := e.selectChanges(req.Selected)
	req.Selected = selected

	result := &orchestrator.EvaluationResult{
		Failures: []orchestrator.PolicyFailure{},
		Selected: selected,
	}

	for _, p := range e.policies {
		if !enabled(p, req.Flags) {
			e.logger.Debug(ctx, "policy skipped", zap.String("policy", p.Name()))
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		failures, err := p.Check(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.Name(), err)
		}
		e.logger.Debug(ctx, "policy evaluated",
			zap.String("policy", p.Name()),
			zap.Int("failures", len(failures)))
		result.Failures = append(result.Failures, failures...)
	}

	return result, nil
}

// enabled applies the evaluation flags: notes are gated by Notes, every
// other policy by Policies.
func enabled(p Policy, flags orchestrator.EvaluationFlags) bool {
	if p.Name() == NameCheckinNotes {
		return flags.Notes
	}
	return flags.Policies
}

// selectChanges returns a new slice without excluded paths.
func (e *Evaluator) selectChanges(changes []orchestrator.PendingChange) []orchestrator.PendingChange {
	selected := make([]orchestrator.PendingChange, 0, len(changes))
	for _, c := range changes {
		if e.exclude != nil && e.exclude.Match(c.Path) {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}
