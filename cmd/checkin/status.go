package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

func newStatusCmd(g *globalFlags, f *checkinFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes and policy results without checking in",
		Long: `status runs discovery and policy evaluation with the same comment, work
items and notes a checkin would use, prints the pending changes and any
policy failures, and submits nothing. It also reports the changeset server
head and the last changeset recorded in the working copy.

Exits 3 when a policy fails, so it can gate CI before the real checkin.

Examples:
  checkin status -m "Fix parser" -w 1234`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, g, f)
		},
	}
	f.register(cmd)
	return cmd
}

// policyCheckError reports failing policies from a dry run.
type policyCheckError struct {
	failures []orchestrator.PolicyFailure
}

func (e *policyCheckError) Error() string {
	if len(e.failures) == 1 {
		return "1 policy failure"
	}
	return fmt.Sprintf("%d policy failures", len(e.failures))
}

func runStatus(cmd *cobra.Command, g *globalFlags, f *checkinFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := newEnv(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	ctx = logging.WithWorkspace(ctx, e.ws.Root())
	out := cmd.OutOrStdout()

	pending, err := e.ws.PendingChanges(ctx)
	if err != nil {
		return err
	}
	target, err := e.ws.TargetVersion()
	if err != nil {
		return err
	}
	branch := e.ws.Branch()
	if branch == "" {
		branch = "detached"
	}
	fmt.Fprintf(out, "Workspace: %s (branch %s, target version C%d)\n", e.ws.Root(), branch, target)

	if err := printServer(ctx, e, out); err != nil {
		return err
	}

	policies := e.evaluator.Policies()
	if len(policies) == 0 {
		fmt.Fprintln(out, "Policies: none")
	} else {
		fmt.Fprintf(out, "Policies: %s\n", strings.Join(policies, ", "))
	}
	if patterns := e.evaluator.ExcludePatterns(); len(patterns) > 0 {
		fmt.Fprintf(out, "Excluded: %s\n", strings.Join(patterns, ", "))
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending changes.")
		return nil
	}

	opts, err := f.options(cmd, target)
	if err != nil {
		return err
	}

	result, err := e.evaluator.Evaluate(ctx, orchestrator.EvaluationRequest{
		Flags:         opts.EvaluationFlags(),
		Pending:       pending,
		Selected:      pending,
		Comment:       opts.Comment,
		Notes:         opts.Notes,
		WorkItems:     opts.WorkItems,
		TargetVersion: target,
	})
	if err != nil {
		return fmt.Errorf("evaluate policies: %w", err)
	}

	selected := make(map[string]bool, len(result.Selected))
	for _, c := range result.Selected {
		selected[c.Path] = true
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Pending changes (%d):\n", len(pending))
	for _, c := range pending {
		mark := ""
		if !selected[c.Path] {
			mark = "(excluded)"
		}
		name := c.Path
		if c.SourcePath != "" {
			name = fmt.Sprintf("%s -> %s", c.SourcePath, c.Path)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Kind, name, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !result.HasFailures() {
		fmt.Fprintln(out, "All policies passed.")
		return nil
	}
	for _, fail := range result.Failures {
		if _, err := io.WriteString(out, fail.Diagnostic()); err != nil {
			return err
		}
	}
	return &policyCheckError{failures: result.Failures}
}

// printServer reports the server head and the last recorded changeset. An
// unreachable server is reported, not returned.
func printServer(ctx context.Context, e *env, out io.Writer) error {
	client, err := e.client()
	if err != nil {
		return err
	}

	health, err := client.Health(ctx)
	if err != nil {
		e.logger.Debug(ctx, "server health check failed", zap.Error(err))
		fmt.Fprintf(out, "Server: %s (unreachable)\n", e.cfg.Remote.URL)
		return nil
	}
	fmt.Fprintf(out, "Server: %s (head C%d)\n", e.cfg.Remote.URL, health.Head)

	last, err := e.ws.LastCheckin()
	if err != nil {
		return err
	}
	if last == 0 {
		return nil
	}
	cs, err := client.Changeset(ctx, last)
	if err != nil {
		e.logger.Debug(ctx, "failed to fetch last changeset", zap.Int("changeset", last), zap.Error(err))
		fmt.Fprintf(out, "Last checkin: C%d\n", last)
		return nil
	}
	fmt.Fprintf(out, "Last checkin: C%d by %s: %s\n", cs.ID, cs.Author, cs.Comment)
	return nil
}
