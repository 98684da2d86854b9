package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
)

// MergeFIExecutor merges a multi-dependency node's remaining dependency
// commits into its own worktree, in dependency order (spec.md §4.2.4). The
// worktree was created at the first dependency's commit, so only the rest
// need merging in.
type MergeFIExecutor struct{}

func (MergeFIExecutor) Execute(ctx context.Context, pc *Context) Result {
	merge := pc.Adapter.Merge()

	for i, depCommit := range pc.RemainingDependencyCommits() {
		res := merge.Do(ctx, gitadapter.MergeOptions{
			Source:      depCommit,
			NoCommit:    false,
			FastForward: true,
			Message:     fmt.Sprintf("Merge dependency %d into %s", i+1, pc.Node.Task),
		})
		if res.Success {
			continue
		}
		if res.HasConflicts {
			if err := runMergeHelper(ctx, pc, mergeHelperRequest{
				conflictFiles: res.ConflictFiles,
				source:        depCommit,
				target:        "HEAD",
				commitMessage: fmt.Sprintf("Merge dependency %d into %s (resolved)", i+1, pc.Node.Task),
			}); err != nil {
				_ = merge.Abort(ctx)
				return Result{Error: err}
			}
			continue
		}

		if res.Error != nil && isWorktreeDirtyMergeError(res.Error) {
			if err := retryMergeAfterStash(ctx, pc, merge, depCommit, i); err != nil {
				return Result{Error: err}
			}
			continue
		}

		return Result{Error: res.Error}
	}

	head, err := pc.Adapter.Repository().GetHead(ctx)
	if err != nil {
		return Result{Error: err}
	}
	return Result{Success: true, Commit: head}
}

func isWorktreeDirtyMergeError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "local changes") || strings.Contains(msg, "would be overwritten")
}

// retryMergeAfterStash implements the stash-retry-merge-pop recovery
// protocol (spec.md §4.2.4).
func retryMergeAfterStash(ctx context.Context, pc *Context, merge gitadapter.Merge, depCommit string, idx int) error {
	repo := pc.Adapter.Repository()
	if err := repo.StashPush(ctx, "merge-fi-retry"); err != nil {
		return err
	}

	res := merge.Do(ctx, gitadapter.MergeOptions{
		Source:      depCommit,
		FastForward: true,
		Message:     fmt.Sprintf("Merge dependency %d into %s", idx+1, pc.Node.Task),
	})
	if !res.Success {
		if res.HasConflicts {
			if err := runMergeHelper(ctx, pc, mergeHelperRequest{
				conflictFiles: res.ConflictFiles,
				source:        depCommit,
				target:        "HEAD",
				commitMessage: fmt.Sprintf("Merge dependency %d into %s (resolved)", idx+1, pc.Node.Task),
			}); err != nil {
				_ = merge.Abort(ctx)
				return err
			}
		} else if res.Error != nil {
			return res.Error
		}
	}

	return stashPopRecovery(ctx, pc)
}

// stashPopRecovery pops the retry stash, resolving pop conflicts via the
// merge helper or, failing that, by inspecting whether the stash content is
// orchestrator-only bookkeeping (spec.md §4.2.4).
func stashPopRecovery(ctx context.Context, pc *Context) error {
	repo := pc.Adapter.Repository()
	pop := repo.StashPop(ctx)
	if pop.Error == nil {
		return nil
	}
	if !pop.HasConflicts {
		return pop.Error
	}

	helperErr := runMergeHelper(ctx, pc, mergeHelperRequest{
		conflictFiles: pop.ConflictFiles,
		source:        "stash@{0}",
		target:        "HEAD",
		commitMessage: "Resolve stash pop conflicts",
	})
	if helperErr == nil {
		if err := repo.StageAll(ctx); err != nil {
			return err
		}
		return repo.StashDrop(ctx, "")
	}

	diff, _ := repo.StashShowPatch(ctx, "stash@{0}")
	if gitadapter.IsDiffOnlyOrchestratorChanges(diff) {
		return repo.StashDrop(ctx, "")
	}
	if pc.LogInfo != nil {
		pc.LogInfo("stash pop conflict unresolved; dropping stash, worktree-merged content is authoritative")
	}
	return repo.StashDrop(ctx, "")
}

// mergeHelperRequest parameterizes runMergeHelper.
type mergeHelperRequest struct {
	conflictFiles []string
	source        string
	target        string
	commitMessage string
}

const mergeHelperTimeoutSeconds = 10 * 60

// runMergeHelper delegates conflict resolution to the agent with a fixed
// instruction prompt (spec.md §4.2.4).
func runMergeHelper(ctx context.Context, pc *Context, req mergeHelperRequest) error {
	preference := pc.MergePreference
	if preference == "" {
		preference = "theirs"
	}

	conflictList := strings.Join(req.conflictFiles, "\n")
	if conflictList == "" {
		conflictList = "(run `git diff --name-only --diff-filter=U` to list them)"
	}

	prompt := fmt.Sprintf(
		"A git merge of %q into %q has left conflicts in:\n%s\n\n"+
			"Preference policy: prefer %q content when a conflict cannot be reconciled any other way.\n"+
			"Rules: remove all conflict markers; stage the resolved files; commit with the message %q; "+
			"do not refactor unrelated code; do not run the test suite. "+
			"Preserve non-conflicting changes from both sides.",
		req.source, req.target, conflictList, preference, req.commitMessage,
	)

	ar := agent.Request{
		WorktreeDir:  pc.WorktreePath,
		JobID:        pc.Node.ID.String(),
		Instructions: prompt,
		Stdin:        prompt,
		Output: func(line string) {
			if pc.LogOutput != nil {
				pc.LogOutput("merge-helper", line)
			}
		},
	}

	res, err := pc.Delegate.Invoke(ctx, ar)
	if err != nil {
		return err
	}
	if !res.Success {
		return errMergeHelperFailed
	}
	return nil
}

var errMergeHelperFailed = mergeHelperFailedError{}

type mergeHelperFailedError struct{}

func (mergeHelperFailedError) Error() string { return "merge helper: agent failed to resolve conflicts" }

// RemainingDependencyCommits returns the completed commits of this node's
// dependencies after the first (the worktree's own base), in dependency
// order (spec.md §4.2.4). Populated by the job executor before dispatch.
func (pc *Context) RemainingDependencyCommits() []string {
	return pc.remainingDependencyCommits
}
