package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/treevalidate"
)

// MergeRIExecutor lands a leaf node's completed work back into the target
// branch (spec.md §4.2.5), entirely in-memory on the conflict path.
type MergeRIExecutor struct{}

func (MergeRIExecutor) Execute(ctx context.Context, pc *Context) Result {
	if pc.Node.State.CompletedCommit == "" {
		return Result{Success: true}
	}

	repoPath := pc.Plan.RepoPath
	target := pc.mergeRITargetBranch()
	baseCommit := pc.BaseCommit
	completed := pc.Node.State.CompletedCommit

	repo := pc.Adapter.Repository()
	changed, err := repo.HasChangesBetween(ctx, baseCommit, completed, repoPath)
	if err != nil {
		return Result{Error: err}
	}
	if !changed {
		return Result{Success: true}
	}

	merge := gitadapter.New(repoPath).Merge()
	mt := merge.MergeWithoutCheckout(ctx, gitadapter.MergeWithoutCheckoutOptions{
		Source:   completed,
		Target:   target,
		RepoPath: repoPath,
	})

	if mt.TreeSha == "" {
		return Result{Error: mt.Error}
	}

	targetSha, err := gitadapter.New(repoPath).Branches().GetCommit(ctx, target)
	if err != nil {
		return Result{Error: err}
	}

	if !mt.HasConflicts {
		return finishCleanMergeRI(ctx, pc, merge, mt.TreeSha, targetSha, completed, target, repoPath)
	}
	return resolveConflictedMergeRI(ctx, pc, merge, mt, targetSha, completed, target, repoPath)
}

// mergeRITargetBranch returns the snapshot branch when this plan has one,
// so leaf merges land in the snapshot rather than the real target branch
// (spec.md §4.3).
func (pc *Context) mergeRITargetBranch() string {
	if pc.Plan.Snapshot != nil {
		return pc.Plan.Snapshot.Branch
	}
	return pc.Plan.TargetBranch
}

func finishCleanMergeRI(ctx context.Context, pc *Context, merge gitadapter.Merge, tree, targetSha, completed, target, repoPath string) Result {
	msg := fmt.Sprintf("Plan %s: merge %s (commit %s)", pc.Plan.Spec.Name, pc.Node.Task, shortSHA(completed))
	newCommit, err := merge.CommitTree(ctx, repoPath, tree, []string{targetSha, completed}, msg)
	if err != nil {
		return Result{Error: err}
	}

	if err := treevalidate.CheckRatio(ctx, repoPath, newCommit, completed, targetSha); err != nil {
		return Result{Error: fmt.Errorf("merge-ri: %w", err)}
	}

	if err := updateBranchRef(ctx, pc, target, newCommit); err != nil {
		return Result{Error: err}
	}
	if pc.PushOnSuccess {
		_ = gitadapter.New(repoPath).Repository().Push(ctx, "origin", target)
	}
	return Result{Success: true, Commit: newCommit}
}

// resolveConflictedMergeRI resolves every conflicted path entirely
// in-memory: no worktree is ever created (spec.md §4.2.5 conflict path).
func resolveConflictedMergeRI(ctx context.Context, pc *Context, merge gitadapter.Merge, mt gitadapter.MergeTreeResult, targetSha, completed, target, repoPath string) Result {
	tmpDir, err := os.MkdirTemp("", "plango-merge-ri-*")
	if err != nil {
		return Result{Error: err}
	}
	defer os.RemoveAll(tmpDir)

	replacements := make(map[string]string, len(mt.ConflictFiles))
	for _, path := range mt.ConflictFiles {
		content, err := merge.CatFileFromTree(ctx, repoPath, mt.TreeSha, path)
		if err != nil {
			return Result{Error: err}
		}

		absPath := filepath.Join(tmpDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return Result{Error: err}
		}
		if err := os.WriteFile(absPath, content, 0o644); err != nil {
			return Result{Error: err}
		}

		prompt := fmt.Sprintf(
			"Resolve the merge conflict in %q below. Write the fully resolved file content, "+
				"with no conflict markers, back to the same path. Do not add commentary.\n\n%s",
			path, string(content),
		)
		req := agent.Request{
			WorktreeDir:  tmpDir,
			JobID:        pc.Node.ID.String(),
			Instructions: prompt,
			Stdin:        prompt,
			Output: func(line string) {
				if pc.LogOutput != nil {
					pc.LogOutput("merge-ri-resolve", line)
				}
			},
		}
		if _, err := pc.Delegate.Invoke(ctx, req); err != nil {
			return Result{Error: err}
		}

		blobSha, err := merge.HashObjectFromFile(ctx, repoPath, absPath)
		if err != nil {
			return Result{Error: err}
		}
		replacements[path] = blobSha
	}

	cleanTree, err := merge.ReplaceTreeBlobs(ctx, repoPath, mt.TreeSha, replacements)
	if err != nil {
		return Result{Error: err}
	}

	msg := fmt.Sprintf("Plan %s: merge %s (commit %s)", pc.Plan.Spec.Name, pc.Node.Task, shortSHA(completed))
	newCommit, err := merge.CommitTree(ctx, repoPath, cleanTree, []string{targetSha, completed}, msg)
	if err != nil {
		return Result{Error: err}
	}

	if err := treevalidate.CheckRatio(ctx, repoPath, newCommit, completed, targetSha); err != nil {
		return Result{Error: fmt.Errorf("merge-ri: %w", err)}
	}

	if err := updateBranchRef(ctx, pc, target, newCommit); err != nil {
		return Result{Error: err}
	}
	if pc.PushOnSuccess {
		_ = gitadapter.New(repoPath).Repository().Push(ctx, "origin", target)
	}
	return Result{Success: true, Commit: newCommit}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func updateBranchRef(ctx context.Context, pc *Context, target, newCommit string) error {
	return gitadapter.UpdateBranchRefSafely(ctx, pc.Plan.RepoPath, target, newCommit)
}
