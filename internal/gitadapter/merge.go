package gitadapter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Merge is the merge-primitives namespace (spec.md §4.1).
type Merge struct{ a *Adapter }

// MergeOptions parameterizes Merge.Do.
type MergeOptions struct {
	Source       string
	NoCommit     bool
	Message      string
	FastForward  bool // false passes --no-ff
}

// MergeResult is the outcome of a working-tree merge.
type MergeResult struct {
	Success       bool
	HasConflicts  bool
	ConflictFiles []string
	Error         error
}

// Do performs `git merge` in the adapter's working directory.
func (m Merge) Do(ctx context.Context, opts MergeOptions) MergeResult {
	args := []string{"merge"}
	if opts.NoCommit {
		args = append(args, "--no-commit")
	}
	if !opts.FastForward {
		args = append(args, "--no-ff")
	}
	if opts.Message != "" {
		args = append(args, "-m", opts.Message)
	}
	args = append(args, opts.Source)

	out, err := m.a.run(ctx, args...)
	if err == nil {
		return MergeResult{Success: true}
	}
	if strings.Contains(out, "CONFLICT") || strings.Contains(err.Error(), "CONFLICT") {
		files, _ := m.ListConflicts(ctx)
		return MergeResult{HasConflicts: true, ConflictFiles: files, Error: err}
	}
	return MergeResult{Error: err}
}

// MergeTreeResult is the outcome of an in-memory merge-tree (no working
// directory touched).
type MergeTreeResult struct {
	Success       bool
	TreeSha       string
	HasConflicts  bool
	ConflictFiles []string
	Error         error
}

// MergeWithoutCheckoutOptions parameterizes MergeWithoutCheckout.
type MergeWithoutCheckoutOptions struct {
	Source   string
	Target   string
	RepoPath string
}

// MergeWithoutCheckout uses `git merge-tree` to produce a candidate tree,
// or a conflicted tree with markers, without touching any working
// directory (spec.md §4.1, GLOSSARY "Merge-tree").
func (m Merge) MergeWithoutCheckout(ctx context.Context, opts MergeWithoutCheckoutOptions) MergeTreeResult {
	repo := New(opts.RepoPath)
	args := []string{"merge-tree", "--write-tree", "--name-only", "-z", opts.Target, opts.Source}
	out, err := repo.run(ctx, args...)
	if err == nil {
		tree := strings.SplitN(out, "\x00", 2)[0]
		return MergeTreeResult{Success: true, TreeSha: strings.TrimSpace(tree)}
	}

	// merge-tree --write-tree exits non-zero on conflicts, but still emits
	// the conflicted tree sha as its first line, followed by NUL-separated
	// conflicted paths, an empty entry, and informational messages. run()
	// drops stdout on a non-zero exit, so read it from a direct invocation.
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = opts.RepoPath
	raw, _ := cmd.Output()
	lines := strings.Split(string(raw), "\x00")
	if len(lines) == 0 || lines[0] == "" {
		return MergeTreeResult{Error: err}
	}
	tree := strings.TrimSpace(strings.SplitN(lines[0], "\n", 2)[0])
	var files []string
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			break
		}
		files = append(files, l)
	}
	if tree == "" {
		return MergeTreeResult{Error: err}
	}
	return MergeTreeResult{TreeSha: tree, HasConflicts: true, ConflictFiles: files, Error: err}
}

// CommitTree creates a commit object with the given tree and parents,
// without touching the index or working directory.
func (m Merge) CommitTree(ctx context.Context, repoPath, tree string, parents []string, message string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)
	return New(repoPath).run(ctx, args...)
}

// CatFileFromTree reads a path's blob content out of a tree object,
// returning nil, nil if the path doesn't exist in that tree.
func (m Merge) CatFileFromTree(ctx context.Context, repoPath, tree, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "cat-file", "blob", tree+":"+path)
	cmd.Dir = repoPath
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if strings.Contains(errBuf.String(), "does not exist") || strings.Contains(errBuf.String(), "Not a valid object") {
			return nil, nil
		}
		return nil, fmt.Errorf("git cat-file blob %s:%s: %s: %w", tree, path, errBuf.String(), err)
	}
	return out.Bytes(), nil
}

// HashObjectFromFile writes absPath into the object database and returns
// its blob sha.
func (m Merge) HashObjectFromFile(ctx context.Context, repoPath, absPath string) (string, error) {
	return New(repoPath).run(ctx, "hash-object", "-w", absPath)
}

// ReplaceTreeBlobs rewrites tree, substituting the blob sha at each given
// path, and returns the new tree sha. Paths not present in replacements are
// left untouched (spec.md §4.1, §4.2.5 conflict path).
func (m Merge) ReplaceTreeBlobs(ctx context.Context, repoPath, tree string, replacements map[string]string) (string, error) {
	repo := New(repoPath)
	lsOut, err := repo.run(ctx, "ls-tree", "-r", tree)
	if err != nil {
		return "", fmt.Errorf("listing tree %s: %w", tree, err)
	}

	cmd := exec.CommandContext(ctx, "git", "mktree")
	cmd.Dir = repoPath
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return "", err
	}

	go func() {
		defer stdin.Close()
		for _, line := range strings.Split(lsOut, "\n") {
			if line == "" {
				continue
			}
			// <mode> SP <type> SP <sha>\t<path>
			metaAndPath := strings.SplitN(line, "\t", 2)
			if len(metaAndPath) != 2 {
				continue
			}
			meta, path := metaAndPath[0], metaAndPath[1]
			fields := strings.Fields(meta)
			if len(fields) != 3 {
				continue
			}
			mode, typ, sha := fields[0], fields[1], fields[2]
			if newSha, ok := replacements[path]; ok && typ == "blob" {
				sha = newSha
			}
			fmt.Fprintf(stdin, "%s %s %s\t%s\n", mode, typ, sha, path)
		}
	}()

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("git mktree: %s: %w", errBuf.String(), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// ListConflicts lists unmerged paths in the adapter's working directory.
func (m Merge) ListConflicts(ctx context.Context) ([]string, error) {
	out, err := m.a.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Abort aborts an in-progress merge.
func (m Merge) Abort(ctx context.Context) error {
	_, err := m.a.run(ctx, "merge", "--abort")
	return err
}

// ContinueAfterResolve stages nothing itself (callers stage resolved files)
// and commits the in-progress merge with message.
func (m Merge) ContinueAfterResolve(ctx context.Context, message string) error {
	_, err := m.a.run(ctx, "commit", "-m", message)
	return err
}

// IsInProgress reports whether a merge is currently in progress in the
// adapter's working directory.
func (m Merge) IsInProgress(ctx context.Context) bool {
	_, err := os.Stat(m.a.Dir + "/.git/MERGE_HEAD")
	if err == nil {
		return true
	}
	// Worktrees keep .git as a file pointing at the real gitdir; resolve it.
	gitDir, rerr := m.a.run(ctx, "rev-parse", "--git-dir")
	if rerr != nil {
		return false
	}
	_, err = os.Stat(gitDir + "/MERGE_HEAD")
	return err == nil
}
