package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// checkinFlags are the operator's intent for one checkin.
type checkinFlags struct {
	comment   string
	associate []string
	resolve   []string
	notes     []string
	reason    string
}

func (f *checkinFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.comment, "message", "m", "", "checkin comment")
	fl.StringArrayVarP(&f.associate, "work-item", "w", nil, "associate a work item (repeatable)")
	fl.StringArrayVar(&f.resolve, "resolve", nil, "resolve a work item (repeatable)")
	fl.StringArrayVar(&f.notes, "note", nil, "checkin note as NAME=VALUE (repeatable)")
	fl.StringVarP(&f.reason, "force", "f", "", `override policy failures, giving REASON (-f "" forces without one)`)
}

// options builds orchestrator options. Force is set by the presence of
// -f, even with an empty reason.
func (f *checkinFlags) options(cmd *cobra.Command, targetVersion int) (orchestrator.Options, error) {
	force := cmd.Flags().Changed("force")
	if force && strings.HasPrefix(f.reason, "-") {
		return orchestrator.Options{}, fmt.Errorf("override reason %q looks like a flag: -f takes a value, use -f \"\" to force without a reason", f.reason)
	}

	notes, err := parseNotes(f.notes)
	if err != nil {
		return orchestrator.Options{}, err
	}

	return orchestrator.Options{
		Comment:        f.comment,
		Notes:          notes,
		WorkItems:      workItems(f.associate, f.resolve),
		Force:          force,
		OverrideReason: f.reason,
		TargetVersion:  targetVersion,
	}, nil
}

func parseNotes(raw []string) ([]orchestrator.NoteField, error) {
	notes := make([]orchestrator.NoteField, 0, len(raw))
	for _, r := range raw {
		name, value, ok := strings.Cut(r, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --note %q (want NAME=VALUE)", r)
		}
		notes = append(notes, orchestrator.NoteField{Name: name, Value: value})
	}
	return notes, nil
}

func workItems(associate, resolve []string) []orchestrator.WorkItem {
	items := make([]orchestrator.WorkItem, 0, len(associate)+len(resolve))
	for _, id := range associate {
		items = append(items, orchestrator.WorkItem{ID: id, Action: orchestrator.WorkItemAssociate})
	}
	for _, id := range resolve {
		items = append(items, orchestrator.WorkItem{ID: id, Action: orchestrator.WorkItemResolve})
	}
	return items
}

// recordingSubmitter remembers the last submission so the accepted changes
// can be recorded in the working copy.
type recordingSubmitter struct {
	next orchestrator.Submitter
	last orchestrator.Submission
}

func (r *recordingSubmitter) Submit(ctx context.Context, sub orchestrator.Submission) (int, error) {
	r.last = sub
	return r.next.Submit(ctx, sub)
}

func runCheckin(cmd *cobra.Command, g *globalFlags, f *checkinFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := newEnv(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	// The attempt id travels to the server as X-Request-Id.
	ctx = logging.WithCheckinID(logging.WithWorkspace(ctx, e.ws.Root()), uuid.NewString())

	lock, err := e.ws.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			e.logger.Warn(ctx, "failed to release workspace lock", zap.String("path", lock.Path()), zap.Error(err))
		}
	}()

	target, err := e.ws.TargetVersion()
	if err != nil {
		return err
	}
	opts, err := f.options(cmd, target)
	if err != nil {
		return err
	}

	client, err := e.client()
	if err != nil {
		return err
	}
	sub := &recordingSubmitter{next: client}

	orch, err := orchestrator.New(orchestrator.Deps{
		Discoverer: e.ws,
		Evaluator:  e.evaluator,
		Submitter:  sub,
		Output:     cmd.OutOrStdout(),
		Logger:     e.logger,
		Metrics:    e.metrics,
		Tracer:     e.tel.Tracer(orchestrator.InstrumentationName),
	}, opts)
	if err != nil {
		return err
	}
	orch.OnProgress(func(p orchestrator.Progress) {
		e.logger.Debug(ctx, p.Message, zap.String("stage", string(p.Stage)))
	})

	id, err := orch.Checkin(ctx)
	if err != nil {
		return err
	}

	hash, err := e.ws.Record(ctx, id, opts.Comment, sub.last.Changes)
	if err != nil {
		// The server already holds the changeset; only local bookkeeping failed.
		e.logger.Warn(ctx, "failed to record checkin in working copy", zap.Error(err))
	} else {
		e.logger.Debug(ctx, "recorded bookkeeping commit", zap.Int("changeset", id), zap.String("commit", hash))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checked in changeset C%d\n", id)
	return nil
}
