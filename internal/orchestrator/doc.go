// Package orchestrator drives a checkin from pending local changes to a
// changeset on the remote server.
//
// # Overview
//
// A checkin passes through ordered gates, each a hard stop on failure:
//
//	Start → Discovered → Evaluated → {Accepted | PolicyBlocked | OverrideMissing} → Submitted → {Success | SubmitFailed}
//
//  1. Discovery: no pending changes fails with KindNoChanges.
//  2. Evaluation: the Evaluator runs the configured policies.
//  3. Failures: each failure is written to the output sink as
//     "[ERROR] Policy: <message>". Without Force the checkin fails with
//     KindPolicyRejected. With Force but no reason it fails with
//     KindOverrideReasonRequired.
//  4. Submission: the Submitter returns a changeset id. A non-positive id
//     fails with KindCheckinFailed.
//
// # Collaborators
//
// Discoverer, Evaluator and Submitter are interfaces so the engine can run
// against a git working copy and an HTTP changeset server in production and
// against plain stubs in tests.
//
// # Usage
//
//	orch, err := orchestrator.New(orchestrator.Deps{
//	    Discoverer: ws,
//	    Evaluator:  evaluator,
//	    Submitter:  client,
//	    Output:     os.Stdout,
//	    Logger:     logger,
//	}, orchestrator.Options{
//	    Comment:        "Fix login redirect",
//	    WorkItems:      []orchestrator.WorkItem{{ID: "42"}},
//	    Force:          true,
//	    OverrideReason: "hotfix approved by release manager",
//	})
//	id, err := orch.Checkin(ctx)
//	switch orchestrator.KindOf(err) {
//	case orchestrator.KindPolicyRejected:
//	    ...
//	}
//
// # Errors
//
// Gate failures are *Error values carrying a Kind. Match them with
// errors.Is against the ErrNoChanges, ErrPolicyRejected,
// ErrOverrideReasonRequired and ErrCheckinFailed sentinels, or with KindOf.
// Discovery and evaluation I/O errors are returned wrapped and carry no Kind.
package orchestrator
