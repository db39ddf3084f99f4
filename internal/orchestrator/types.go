package orchestrator

import (
	"context"
	"strings"
)

// ChangeKind is the kind of local modification
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeEdit   ChangeKind = "edit"
	ChangeDelete ChangeKind = "delete"
	ChangeRename ChangeKind = "rename"
)

// PendingChange is one local modification awaiting checkin
type PendingChange struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`

	// SourcePath is the previous path of a rename.
	SourcePath string `json:"source_path,omitempty"`
}

// WorkItemAction says what a checkin does to a linked work item
type WorkItemAction string

const (
	WorkItemAssociate WorkItemAction = "associate"
	WorkItemResolve   WorkItemAction = "resolve"
)

// WorkItem links a checkin to a tracked work item
type WorkItem struct {
	ID     string         `json:"id"`
	Action WorkItemAction `json:"action"`
}

// NoteField is one named checkin note value
type NoteField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EvaluationFlags selects which parts of policy evaluation run
type EvaluationFlags struct {
	Policies bool `json:"policies"`
	Notes    bool `json:"notes"`
}

// DefaultEvaluationFlags evaluates both policies and checkin notes.
func DefaultEvaluationFlags() EvaluationFlags {
	return EvaluationFlags{Policies: true, Notes: true}
}

// Options is the operator's intent for one checkin. It is built once and
// not modified during orchestration.
type Options struct {
	Comment        string
	Notes          []NoteField
	WorkItems      []WorkItem
	Force          bool
	OverrideReason string

	// TargetVersion is the changeset the working copy was last synchronized to.
	TargetVersion int

	// Evaluation defaults to DefaultEvaluationFlags when nil. A non-nil
	// zero value asks the evaluator to run neither policies nor notes.
	Evaluation *EvaluationFlags
}

// EvaluationFlags returns the flags passed to the evaluator.
func (o Options) EvaluationFlags() EvaluationFlags {
	if o.Evaluation == nil {
		return DefaultEvaluationFlags()
	}
	return *o.Evaluation
}

// hasReason reports whether a usable override reason was supplied.
func (o Options) hasReason() bool {
	return strings.TrimSpace(o.OverrideReason) != ""
}

// PolicyFailure is a named policy plus why it failed
type PolicyFailure struct {
	Policy  string `json:"policy"`
	Message string `json:"message"`
}

// Diagnostic is the line written for the failure, newline included.
func (f PolicyFailure) Diagnostic() string {
	return "[ERROR] Policy: " + f.Message + "\n"
}

// EvaluationRequest is everything the Evaluator sees for one checkin
type EvaluationRequest struct {
	Flags         EvaluationFlags
	Pending       []PendingChange
	Selected      []PendingChange
	Comment       string
	Notes         []NoteField
	WorkItems     []WorkItem
	TargetVersion int
}

// EvaluationResult is the outcome of running the configured policies
type EvaluationResult struct {
	// Failures in policy configuration order; empty means no violations.
	Failures []PolicyFailure

	// Selected is the subset of pending changes chosen for checkin.
	// Nil means every pending change.
	Selected []PendingChange
}

// HasFailures reports whether any policy failed.
func (r *EvaluationResult) HasFailures() bool {
	return r != nil && len(r.Failures) > 0
}

// PolicyNames returns the distinct failed policy names in first-seen order.
func (r *EvaluationResult) PolicyNames() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool, len(r.Failures))
	names := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		if !seen[f.Policy] {
			seen[f.Policy] = true
			names = append(names, f.Policy)
		}
	}
	return names
}

// OverrideRecord tells the server who bypassed which policies and why
type OverrideRecord struct {
	Reason   string   `json:"reason"`
	Policies []string `json:"policies"`
}

// Submission is what the Submitter sends to the remote system
type Submission struct {
	Changes   []PendingChange
	Comment   string
	Notes     []NoteField
	WorkItems []WorkItem

	// Override is nil unless failed policies were forced past.
	Override *OverrideRecord
	Forced   bool

	BaseVersion int
}

// Discoverer finds pending local changes
type Discoverer interface {
	PendingChanges(ctx context.Context) ([]PendingChange, error)
}

// Evaluator runs checkin policies against a proposed change set.
// It must be deterministic and must not modify the request slices.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error)
}

// Submitter transmits a changeset and returns its id; a non-positive id
// means the remote system did not accept it.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (int, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context) ([]PendingChange, error)

func (f DiscovererFunc) PendingChanges(ctx context.Context) ([]PendingChange, error) {
	return f(ctx)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	return f(ctx, req)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub Submission) (int, error)

func (f SubmitterFunc) Submit(ctx context.Context, sub Submission) (int, error) {
	return f(ctx, sub)
}

// Stage is a step of the checkin state machine
type Stage string

const (
	StageStart      Stage = "start"
	StageDiscovered Stage = "discovered"
	StageEvaluated  Stage = "evaluated"
	StageAccepted   Stage = "accepted"
	StageSubmitted  Stage = "submitted"
)

// Progress reports a stage transition
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// ProgressCallback receives progress updates during a checkin
type ProgressCallback func(progress Progress)
