// Package main implements the checkin CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK                     = 0
	exitError                  = 1
	exitNoChanges              = 2
	exitPolicyRejected         = 3
	exitOverrideReasonRequired = 4
	exitCheckinFailed          = 5
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	workspace  string
	remote     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	opts := &checkinFlags{}

	root := &cobra.Command{
		Use:   "checkin",
		Short: "Check in pending workspace changes through the policy gates",
		Long: `checkin discovers the pending changes in a git working copy, evaluates the
configured checkin policies and submits the changes to the changeset server.

Policy failures block the checkin unless forced with -f REASON. Each failure
is printed as an "[ERROR] Policy: <message>" line.

Examples:
  # Check in with a comment and a work item
  checkin -m "Fix parser" -w 1234

  # Resolve a work item and fill in a checkin note
  checkin -m "Ship it" --resolve 1234 --note "Code Reviewer=dana"

  # Override failing policies
  checkin -m "Hotfix" -f "prod outage, reviewed after the fact"`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckin(cmd, g, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/.config/checkin/config.yaml)")
	pf.StringVar(&g.workspace, "workspace", "", "working copy directory (overrides workspace.path)")
	pf.StringVar(&g.remote, "remote", "", "changeset server URL (overrides remote.url)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	opts.register(root)

	root.AddCommand(newStatusCmd(g, opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checkin by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// exitCode maps a checkin error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var pce *policyCheckError
	if errors.As(err, &pce) {
		return exitPolicyRejected
	}
	switch orchestrator.KindOf(err) {
	case orchestrator.KindNoChanges:
		return exitNoChanges
	case orchestrator.KindPolicyRejected:
		return exitPolicyRejected
	case orchestrator.KindOverrideReasonRequired:
		return exitOverrideReasonRequired
	case orchestrator.KindCheckinFailed:
		return exitCheckinFailed
	}
	return exitError
}
