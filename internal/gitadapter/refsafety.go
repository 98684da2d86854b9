package gitadapter

import (
	"context"
	"os"
	"path/filepath"
)

// UpdateBranchRefSafely moves target to newCommit, applying the
// working-tree safety rule when target is currently checked out in the
// repo's main worktree (spec.md §4.2.5, reused by the Final Merge
// Executor's step 5, spec.md §4.6): snapshot dirtiness before the move;
// clean before ⇒ resetHard; dirty before ⇒ resetMixed plus selective
// checkoutFile for newly-dirty paths only, leaving already-dirty paths
// untouched. A different branch checked out means the working tree is
// never touched at all; never stash, never pop.
func UpdateBranchRefSafely(ctx context.Context, repoPath, target, newCommit string) error {
	a := New(repoPath)

	current, err := a.Branches().Current(ctx)
	if err != nil {
		return err
	}
	if current != target {
		return a.Repository().UpdateRef(ctx, repoPath, target, newCommit)
	}

	preDirty, err := a.Repository().GetDirtyFiles(ctx)
	if err != nil {
		return err
	}
	if len(preDirty) == 0 {
		return a.Repository().ResetHard(ctx, newCommit)
	}

	preSet := make(map[string]bool, len(preDirty))
	for _, f := range preDirty {
		preSet[f] = true
	}

	if err := a.Repository().ResetMixed(ctx, newCommit); err != nil {
		return err
	}

	postDirty, err := a.Repository().GetDirtyFiles(ctx)
	if err != nil {
		return err
	}
	for _, f := range postDirty {
		if preSet[f] {
			continue
		}
		if err := a.Repository().CheckoutFile(ctx, f); err != nil {
			_ = os.Remove(filepath.Join(repoPath, f))
		}
	}
	return nil
}
