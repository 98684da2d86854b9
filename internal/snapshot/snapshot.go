// Package snapshot manages the per-plan snapshot branch and worktree that
// accumulates leaf merges before the Final Merge Executor lands one
// validated merge into the real target branch (spec.md §4.3).
package snapshot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/plan"
)

// worktreeDirPrefix is joined with a plan's short id to place its snapshot
// worktree, grounded on the teacher's per-concern worktree layout
// (internal/engine.worktreePath).
const worktreeDirPrefix = "_snapshot-"

// Create resolves the target branch's current HEAD, creates the snapshot
// branch there, and checks out a detached worktree onto it (spec.md §4.3
// steps 1-3).
func Create(ctx context.Context, a *gitadapter.Adapter, planID uuid.UUID, targetBranch, worktreeRoot string) (*plan.Snapshot, error) {
	base, err := a.Branches().GetCommit(ctx, targetBranch)
	if err != nil {
		return nil, fmt.Errorf("resolving %s HEAD: %w", targetBranch, err)
	}

	branch := plan.SnapshotBranch(planID)
	if err := a.Branches().CreateOrReset(ctx, branch, base); err != nil {
		return nil, fmt.Errorf("creating snapshot branch %s: %w", branch, err)
	}

	wtPath := worktreeRoot + "/" + worktreeDirPrefix + shortID(planID)
	if err := a.Worktrees().Create(ctx, gitadapter.CreateOptions{
		Path:      wtPath,
		Commitish: base,
		Detach:    true,
	}); err != nil {
		return nil, fmt.Errorf("creating snapshot worktree: %w", err)
	}

	if err := gitadapter.New(wtPath).Branches().Checkout(ctx, branch); err != nil {
		return nil, fmt.Errorf("checking out snapshot branch in worktree: %w", err)
	}

	return &plan.Snapshot{Branch: branch, WorktreePath: wtPath, BaseCommit: base}, nil
}

// RebaseOnTarget keeps the snapshot branch current with the real target
// branch as it moves (spec.md §4.3): a no-op when target hasn't moved,
// otherwise a rebase onto the new HEAD; on conflict the rebase is aborted
// and false is returned.
func RebaseOnTarget(ctx context.Context, a *gitadapter.Adapter, snap *plan.Snapshot, targetBranch string) bool {
	newHead, err := a.Branches().GetCommit(ctx, targetBranch)
	if err != nil {
		return false
	}
	if newHead == snap.BaseCommit {
		return true
	}

	wtAdapter := gitadapter.New(snap.WorktreePath)
	if err := wtAdapter.Repository().RebaseOnto(ctx, newHead, snap.BaseCommit, snap.Branch); err != nil {
		return false
	}

	snap.BaseCommit = newHead
	return true
}

// CleanupSnapshot tears down the snapshot worktree and branch, tolerant of
// either being already absent (spec.md §4.3).
func CleanupSnapshot(ctx context.Context, a *gitadapter.Adapter, snap *plan.Snapshot) {
	if snap == nil {
		return
	}
	_ = a.Worktrees().RemoveSafe(ctx, snap.WorktreePath)
	_ = a.Branches().DeleteLocal(ctx, snap.Branch)
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
