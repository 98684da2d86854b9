package gitadapter

import (
	"context"
	"fmt"
	"strings"
)

// Repository is the general repository-operations namespace (spec.md §4.1).
type Repository struct{ a *Adapter }

// Fetch fetches from remote.
func (r Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.a.run(ctx, "fetch", remote)
	return err
}

// Pull pulls remote/branch into the current checkout.
func (r Repository) Pull(ctx context.Context, remote, branch string) error {
	_, err := r.a.run(ctx, "pull", remote, branch)
	return err
}

// Push pushes branch to remote.
func (r Repository) Push(ctx context.Context, remote, branch string) error {
	_, err := r.a.run(ctx, "push", remote, branch)
	return err
}

// StageAll stages all changes, including untracked files.
func (r Repository) StageAll(ctx context.Context) error {
	_, err := r.a.run(ctx, "add", "-A")
	return err
}

// StageFile stages a single path.
func (r Repository) StageFile(ctx context.Context, path string) error {
	_, err := r.a.run(ctx, "add", path)
	return err
}

// Commit creates a commit with message and returns the new HEAD sha.
// Uses --no-verify: commits happen after the agent/process has exited, so
// no agent is available to react to a hook failure (grounded on the
// teacher's internal/git.Repo.Commit).
func (r Repository) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.a.run(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return r.a.run(ctx, "rev-parse", "HEAD")
}

// HasUncommittedChanges reports whether the working tree has any staged or
// unstaged changes.
func (r Repository) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := r.a.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// GetDirtyFiles lists paths with uncommitted changes (staged or not).
func (r Repository) GetDirtyFiles(ctx context.Context) ([]string, error) {
	out, err := r.a.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		files = append(files, strings.TrimSpace(line[2:]))
	}
	return files, nil
}

// GetHead returns the current HEAD commit sha.
func (r Repository) GetHead(ctx context.Context) (string, error) {
	return r.a.run(ctx, "rev-parse", "HEAD")
}

// ResolveRef resolves ref to a commit sha within repo.
func (r Repository) ResolveRef(ctx context.Context, repo, ref string) (string, error) {
	return New(repo).run(ctx, "rev-parse", ref)
}

// HasChangesBetween reports whether from..to contains any commits.
func (r Repository) HasChangesBetween(ctx context.Context, from, to, repo string) (bool, error) {
	out, err := New(repo).run(ctx, "rev-list", "--count", from+".."+to)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "0", nil
}

// UpdateRef moves refName to commit directly, without touching the index
// or working tree (used by updateBranchRef when a different branch is
// checked out, spec.md §4.2.5).
func (r Repository) UpdateRef(ctx context.Context, repo, refName, commit string) error {
	_, err := New(repo).run(ctx, "update-ref", "refs/heads/"+refName, commit)
	return err
}

// ResetHard resets HEAD, the index, and the working tree to ref.
func (r Repository) ResetHard(ctx context.Context, ref string) error {
	_, err := r.a.run(ctx, "reset", "--hard", ref)
	return err
}

// ResetMixed resets HEAD and the index to ref, leaving the working tree
// untouched.
func (r Repository) ResetMixed(ctx context.Context, ref string) error {
	_, err := r.a.run(ctx, "reset", "--mixed", ref)
	return err
}

// CheckoutFile restores path from the index into the working tree.
func (r Repository) CheckoutFile(ctx context.Context, path string) error {
	_, err := r.a.run(ctx, "checkout", "--", path)
	return err
}

// StashPush stashes local changes (including untracked files) with a
// label.
func (r Repository) StashPush(ctx context.Context, label string) error {
	_, err := r.a.run(ctx, "stash", "push", "-u", "-m", label)
	return err
}

// StashPopResult reports whether popping the stash produced conflicts.
type StashPopResult struct {
	HasConflicts  bool
	ConflictFiles []string
	Error         error
}

// StashPop pops the most recent stash.
func (r Repository) StashPop(ctx context.Context) StashPopResult {
	out, err := r.a.run(ctx, "stash", "pop")
	if err == nil {
		return StashPopResult{}
	}
	if strings.Contains(out, "CONFLICT") || strings.Contains(err.Error(), "CONFLICT") {
		files, _ := Merge{r.a}.ListConflicts(ctx)
		return StashPopResult{HasConflicts: true, ConflictFiles: files, Error: err}
	}
	return StashPopResult{Error: err}
}

// StashDrop drops the named (or most recent) stash entry.
func (r Repository) StashDrop(ctx context.Context, ref string) error {
	args := []string{"stash", "drop"}
	if ref != "" {
		args = append(args, ref)
	}
	_, err := r.a.run(ctx, args...)
	return err
}

// StashList lists stash entries.
func (r Repository) StashList(ctx context.Context) ([]string, error) {
	out, err := r.a.run(ctx, "stash", "list")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// StashShowFiles lists the file paths touched by a stash entry.
func (r Repository) StashShowFiles(ctx context.Context, ref string) ([]string, error) {
	out, err := r.a.run(ctx, "stash", "show", "--name-only", ref)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// StashShowPatch returns the unified diff for a stash entry.
func (r Repository) StashShowPatch(ctx context.Context, ref string) (string, error) {
	return r.a.run(ctx, "stash", "show", "-p", ref)
}

// DiffBetween returns the unified diff between two refs, used to classify
// stash content (spec.md §4.2.4 stash-pop recovery).
func (r Repository) DiffBetween(ctx context.Context, from, to string) (string, error) {
	return r.a.run(ctx, "diff", from, to)
}

// CommitsBetween returns commit hashes from..to, oldest first.
func (r Repository) CommitsBetween(ctx context.Context, from, to string) ([]string, error) {
	var rangeSpec string
	if from == "" {
		rangeSpec = to
	} else {
		rangeSpec = from + ".." + to
	}
	out, err := r.a.run(ctx, "rev-list", "--reverse", rangeSpec)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ListTreeFileCount returns the number of files in the tree at ref, used by
// the reverse-integration file-count validation (spec.md §4.2.5, §8
// property 4).
func (r Repository) ListTreeFileCount(ctx context.Context, repo, ref string) (int, error) {
	out, err := New(repo).run(ctx, "ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return 0, fmt.Errorf("listing tree for %s: %w", ref, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return 0, nil
	}
	return len(strings.Split(out, "\n")), nil
}

// RebaseOnto runs `git rebase --onto newBase oldBase branch` in the
// adapter's directory, aborting and returning the failure on conflict
// (grounded on the teacher's internal/git.Repo.Rebase rebase-or-reset
// idiom; used by the snapshot manager, spec.md §4.3).
func (r Repository) RebaseOnto(ctx context.Context, newBase, oldBase, branch string) error {
	if _, err := r.a.run(ctx, "rebase", "--onto", newBase, oldBase, branch); err != nil {
		_, _ = r.a.run(ctx, "rebase", "--abort")
		return err
	}
	return nil
}

// EnsureIdentity sets user.name/user.email locally if unresolvable, so
// commits don't fail with "Author identity unknown" in CI-like
// environments (grounded on the teacher's internal/git.Repo.EnsureIdentity).
func (r Repository) EnsureIdentity(ctx context.Context) {
	if _, err := r.a.run(ctx, "config", "user.name"); err != nil {
		_, _ = r.a.run(ctx, "config", "user.name", "plango")
	}
	if _, err := r.a.run(ctx, "config", "user.email"); err != nil {
		_, _ = r.a.run(ctx, "config", "user.email", "plango@localhost")
	}
}
