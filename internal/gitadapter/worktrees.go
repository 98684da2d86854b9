package gitadapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Worktrees is the worktree-lifecycle namespace (spec.md §4.1).
type Worktrees struct{ a *Adapter }

// CreateOptions parameterizes Create.
type CreateOptions struct {
	Path       string
	Commitish  string
	Branch     string // if set, creates a new branch at Commitish and checks it out
	Detach     bool
	// AdditionalSymlinkDirs are extra directories symlinked into the new
	// worktree after creation (spec.md §2, Plan.Spec.AdditionalSymlinks).
	AdditionalSymlinkDirs []string
}

// Create creates a worktree per opts, initializing submodules recursively
// and setting submodule.recurse=true in the new worktree (spec.md §4.1).
func (w Worktrees) Create(ctx context.Context, opts CreateOptions) error {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("creating worktree parent dir: %w", err)
	}

	args := []string{"worktree", "add"}
	if opts.Detach {
		args = append(args, "--detach")
	}
	if opts.Branch != "" {
		args = append(args, "-b", opts.Branch)
	}
	args = append(args, opts.Path, opts.Commitish)

	if _, err := w.a.run(ctx, args...); err != nil {
		return err
	}

	wt := New(opts.Path)
	if _, err := wt.run(ctx, "submodule", "update", "--init", "--recursive"); err != nil {
		return fmt.Errorf("initializing submodules: %w", err)
	}
	if _, err := wt.run(ctx, "config", "submodule.recurse", "true"); err != nil {
		return fmt.Errorf("setting submodule.recurse: %w", err)
	}

	if err := w.createSubmoduleBranchWorktrees(ctx, opts.Path); err != nil {
		return err
	}

	for _, dir := range opts.AdditionalSymlinkDirs {
		target := filepath.Join(w.a.Dir, dir)
		link := filepath.Join(opts.Path, dir)
		if _, err := os.Stat(target); err != nil {
			continue
		}
		_ = os.MkdirAll(filepath.Dir(link), 0o755)
		_ = os.Symlink(target, link)
	}

	return nil
}

// createSubmoduleBranchWorktrees creates an additional worktree at
// origin/<branch> for each submodule with a configured branch that exists
// on origin (spec.md §4.1).
func (w Worktrees) createSubmoduleBranchWorktrees(ctx context.Context, worktreePath string) error {
	wt := New(worktreePath)
	out, err := wt.run(ctx, "config", "--file", ".gitmodules", "--get-regexp", "submodule\\..*\\.branch")
	if err != nil {
		return nil // no configured submodule branches
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		key, branch := fields[0], fields[1]
		name := strings.TrimSuffix(strings.TrimPrefix(key, "submodule."), ".branch")
		subPath := filepath.Join(worktreePath, name)
		sub := New(subPath)
		if _, err := sub.run(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch); err != nil {
			continue
		}
		branchWT := filepath.Join(worktreePath, ".submodule-worktrees", name)
		_, _ = sub.run(ctx, "worktree", "add", "--detach", branchWT, "origin/"+branch)
	}
	return nil
}

// CreateDetachedWithTiming creates a detached worktree at commitish and
// reports how long it took and the resolved base commit.
func (w Worktrees) CreateDetachedWithTiming(ctx context.Context, path, commitish string, additionalSymlinkDirs ...string) (durationMs int64, baseCommit string, err error) {
	start := time.Now()
	err = w.Create(ctx, CreateOptions{Path: path, Commitish: commitish, Detach: true, AdditionalSymlinkDirs: additionalSymlinkDirs})
	durationMs = time.Since(start).Milliseconds()
	if err != nil {
		return durationMs, "", err
	}
	baseCommit, err = New(path).run(ctx, "rev-parse", "HEAD")
	return durationMs, baseCommit, err
}

// CreateOrReuseDetached is idempotent: if path already holds a valid
// worktree whose .git file is a gitdir link, it's reused as-is rather than
// recreated. Which repository that link points at is not checked.
func (w Worktrees) CreateOrReuseDetached(ctx context.Context, path, commitish string, additionalSymlinkDirs ...string) (baseCommit string, err error) {
	if w.IsValid(path) {
		linked, linkErr := w.linkedRepo(path)
		if linkErr == nil && linked {
			baseCommit, err = New(path).run(ctx, "rev-parse", "HEAD")
			return baseCommit, err
		}
	}
	_, baseCommit, err = w.CreateDetachedWithTiming(ctx, path, commitish, additionalSymlinkDirs...)
	return baseCommit, err
}

// linkedRepo reports whether the worktree at path has a .git file whose
// contents mention a ".git" directory; it does not compare that gitdir
// with this adapter's repository.
func (w Worktrees) linkedRepo(path string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(path, ".git"))
	if err != nil {
		return false, err
	}
	return strings.Contains(string(data), ".git"), nil
}

// Remove removes a worktree, requiring it to be clean.
func (w Worktrees) Remove(ctx context.Context, path string) error {
	_, err := w.a.run(ctx, "worktree", "remove", path)
	return err
}

// RemoveSafe removes a worktree, tolerating its absence and force-removing
// any uncommitted state (the worktree's contents are disposable once the
// job pipeline is done with it).
func (w Worktrees) RemoveSafe(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_, _ = w.a.run(ctx, "worktree", "prune")
		return nil
	}
	_, err := w.a.run(ctx, "worktree", "remove", "--force", path)
	if err != nil {
		_ = os.RemoveAll(path)
		_, _ = w.a.run(ctx, "worktree", "prune")
	}
	return nil
}

// IsValid checks that path is a directory with a .git file (worktree link).
func (w Worktrees) IsValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// GetBranch returns the branch checked out at path, or "" if detached.
func (w Worktrees) GetBranch(ctx context.Context, path string) (string, error) {
	return Branches{New(path)}.Current(ctx)
}

// GetHeadCommit returns HEAD's commit sha for the worktree at path.
func (w Worktrees) GetHeadCommit(ctx context.Context, path string) (string, error) {
	return New(path).run(ctx, "rev-parse", "HEAD")
}

// WorktreeInfo describes one entry from `git worktree list`.
type WorktreeInfo struct {
	Path   string
	Commit string
	Branch string
}

// List returns all worktrees registered against this repository.
func (w Worktrees) List(ctx context.Context) ([]WorktreeInfo, error) {
	out, err := w.a.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var infos []WorktreeInfo
	var cur WorktreeInfo
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if cur.Path != "" {
				infos = append(infos, cur)
			}
			cur = WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if cur.Path != "" {
		infos = append(infos, cur)
	}
	return infos, nil
}

// Prune removes administrative files for worktrees whose directories are
// gone.
func (w Worktrees) Prune(ctx context.Context) error {
	_, err := w.a.run(ctx, "worktree", "prune")
	return err
}
