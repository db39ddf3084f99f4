package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// WorkItemsPolicy requires at least one linked work item.
type WorkItemsPolicy struct{}

func (WorkItemsPolicy) Name() string { return NameWorkItems }

func (WorkItemsPolicy) Check(_ context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	if len(req.WorkItems) > 0 {
		return nil, nil
	}
	return fail(NameWorkItems, "No work items associated."), nil
}

// CommentPolicy requires a non-blank checkin comment.
type CommentPolicy struct{}

func (CommentPolicy) Name() string { return NameComment }

func (CommentPolicy) Check(_ context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	if strings.TrimSpace(req.Comment) != "" {
		return nil, nil
	}
	return fail(NameComment, "A checkin comment is required."), nil
}

// NotesPolicy requires a value for each named checkin note. Note names
// compare case-insensitively.
type NotesPolicy struct {
	Required []string
}

func (NotesPolicy) Name() string { return NameCheckinNotes }

func (p NotesPolicy) Check(_ context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	var failures []orchestrator.PolicyFailure
	for _, name := range p.Required {
		if !hasNote(req.Notes, name) {
			failures = append(failures, orchestrator.PolicyFailure{
				Policy:  NameCheckinNotes,
				Message: fmt.Sprintf("Checkin note '%s' is required.", name),
			})
		}
	}
	return failures, nil
}

func hasNote(notes []orchestrator.NoteField, name string) bool {
	for _, n := range notes {
		if strings.EqualFold(n.Name, name) && strings.TrimSpace(n.Value) != "" {
			return true
		}
	}
	return false
}

// MaxChangesPolicy caps the number of selected changes.
type MaxChangesPolicy struct {
	Max int
}

func (MaxChangesPolicy) Name() string { return NameMaxChanges }

func (p MaxChangesPolicy) Check(_ context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	if p.Max <= 0 || len(req.Selected) <= p.Max {
		return nil, nil
	}
	return fail(NameMaxChanges,
		fmt.Sprintf("Too many changes in a single checkin (%d > %d).", len(req.Selected), p.Max)), nil
}

// ForbiddenPathsPolicy rejects selected changes whose path matches.
type ForbiddenPathsPolicy struct {
	Matcher *PathMatcher
}

func (ForbiddenPathsPolicy) Name() string { return NameForbiddenPaths }

func (p ForbiddenPathsPolicy) Check(_ context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	if p.Matcher == nil {
		return nil, nil
	}
	var failures []orchestrator.PolicyFailure
	for _, c := range req.Selected {
		if c.Kind == orchestrator.ChangeDelete {
			continue
		}
		if p.Matcher.Match(c.Path) {
			failures = append(failures, orchestrator.PolicyFailure{
				Policy:  NameForbiddenPaths,
				Message: fmt.Sprintf("Path '%s' may not be checked in.", c.Path),
			})
		}
	}
	return failures, nil
}

func fail(policy, msg string) []orchestrator.PolicyFailure {
	return []orchestrator.PolicyFailure{{Policy: policy, Message: msg}}
}
