// Package finalmerge implements the Final Merge Executor (spec.md §4.6):
// once every leaf node has merge-ri'd into the snapshot branch, land one
// validated merge from the snapshot into the real target branch, with a
// bounded retry and an optional verify-ri hook.
package finalmerge

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/re-cinq/plango/internal/errkind"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/snapshot"
	"github.com/re-cinq/plango/internal/treevalidate"
)

// MaxAttempts bounds the Final Merge Executor's retries (spec.md §4.6).
const MaxAttempts = 2

// VerifyHook runs a user-configured verification command against dir,
// returning nil on success (spec.md §4.6 "verify-ri hook").
type VerifyHook func(ctx context.Context, dir string) error

// Options parameterizes Run.
type Options struct {
	Adapter    *gitadapter.Adapter
	VerifyHook VerifyHook // optional
}

// Run attempts the final merge up to MaxAttempts times. On exhaustion the
// plan is left in StatusAwaitingFinalMerge for explicit retrigger
// (spec.md §4.6).
func Run(ctx context.Context, p *plan.Plan, opts Options) error {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := attemptFinalMerge(ctx, p, opts); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	p.Status = plan.StatusAwaitingFinalMerge
	p.StateVersion++
	return errkind.Wrap(errkind.FinalMergeExhausted, fmt.Errorf("final merge exhausted %d attempts: %w", MaxAttempts, lastErr))
}

func attemptFinalMerge(ctx context.Context, p *plan.Plan, opts Options) error {
	snap := p.Snapshot
	if snap == nil {
		return fmt.Errorf("plan %s has no snapshot", p.ID)
	}

	if ok := snapshot.RebaseOnTarget(ctx, opts.Adapter, snap, p.TargetBranch); !ok {
		return fmt.Errorf("rebasing snapshot onto %s failed", p.TargetBranch)
	}

	if opts.VerifyHook != nil {
		if err := opts.VerifyHook(ctx, snap.WorktreePath); err != nil {
			return fmt.Errorf("verify-ri against snapshot failed: %w", err)
		}
	}

	merge := opts.Adapter.Merge()
	mt := merge.MergeWithoutCheckout(ctx, gitadapter.MergeWithoutCheckoutOptions{
		Source:   snap.Branch,
		Target:   p.TargetBranch,
		RepoPath: p.RepoPath,
	})
	if mt.HasConflicts || mt.TreeSha == "" {
		return errkind.Wrap(errkind.MergeConflict, fmt.Errorf("merging snapshot into %s: %w", p.TargetBranch, mt.Error))
	}

	targetSha, err := opts.Adapter.Branches().GetCommit(ctx, p.TargetBranch)
	if err != nil {
		return err
	}
	snapSha, err := opts.Adapter.Branches().GetCommit(ctx, snap.Branch)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Plan %s: final merge from snapshot", p.Spec.Name)
	newCommit, err := merge.CommitTree(ctx, p.RepoPath, mt.TreeSha, []string{targetSha, snapSha}, msg)
	if err != nil {
		return err
	}

	if err := treevalidate.CheckRatio(ctx, p.RepoPath, newCommit, snapSha, targetSha); err != nil {
		return errkind.Wrap(errkind.TreeValidationAborted, fmt.Errorf("final merge: %w", err))
	}

	if err := gitadapter.UpdateBranchRefSafely(ctx, p.RepoPath, p.TargetBranch, newCommit); err != nil {
		return err
	}

	if opts.VerifyHook != nil {
		if err := opts.VerifyHook(ctx, p.RepoPath); err != nil {
			return fmt.Errorf("verify-ri against target branch failed: %w", err)
		}
	}

	p.Status = plan.StatusSucceeded
	p.StateVersion++
	return nil
}

// RunVerifyCommand is a convenience VerifyHook backed by a shell command,
// grounded on the teacher's gate-check invocation pattern
// (internal/cli/gate.go).
func RunVerifyCommand(command string) VerifyHook {
	return func(ctx context.Context, dir string) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("verify command failed: %s: %w", string(out), err)
		}
		return nil
	}
}
