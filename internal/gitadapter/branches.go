package gitadapter

import (
	"context"
	"strings"
)

// Branches is the branch-management namespace (spec.md §4.1).
type Branches struct{ a *Adapter }

// Exists checks for a local branch.
func (b Branches) Exists(ctx context.Context, name string) bool {
	_, err := b.a.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// ExistsRemote checks for a branch on the given remote.
func (b Branches) ExistsRemote(ctx context.Context, remote, name string) bool {
	_, err := b.a.run(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/"+remote+"/"+name)
	return err == nil
}

// Current returns the branch checked out in b's directory, or "" if
// detached.
func (b Branches) Current(ctx context.Context) (string, error) {
	out, err := b.a.run(ctx, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return "", nil // detached HEAD is not an adapter failure
	}
	return out, nil
}

// Create creates a local branch at fromRef.
func (b Branches) Create(ctx context.Context, name, fromRef string) error {
	_, err := b.a.run(ctx, "branch", name, fromRef)
	return err
}

// CreateOrReset creates name at fromRef, or force-moves it there if it
// already exists.
func (b Branches) CreateOrReset(ctx context.Context, name, fromRef string) error {
	_, err := b.a.run(ctx, "branch", "-f", name, fromRef)
	return err
}

// Checkout switches the working tree to branch.
func (b Branches) Checkout(ctx context.Context, name string) error {
	_, err := b.a.run(ctx, "checkout", name)
	return err
}

// List returns all local branch names.
func (b Branches) List(ctx context.Context) ([]string, error) {
	out, err := b.a.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// GetCommit resolves a ref to its commit sha.
func (b Branches) GetCommit(ctx context.Context, ref string) (string, error) {
	return b.a.run(ctx, "rev-parse", ref)
}

// GetMergeBase returns the merge base of two refs.
func (b Branches) GetMergeBase(ctx context.Context, a, c string) (string, error) {
	return b.a.run(ctx, "merge-base", a, c)
}

// DeleteLocal deletes a local branch, tolerating a not-fully-merged branch
// by force-deleting it (branches this module creates are always disposable
// plan/snapshot branches).
func (b Branches) DeleteLocal(ctx context.Context, name string) error {
	_, err := b.a.run(ctx, "branch", "-D", name)
	return err
}

// DeleteRemote deletes a branch on the given remote.
func (b Branches) DeleteRemote(ctx context.Context, remote, name string) error {
	_, err := b.a.run(ctx, "push", remote, "--delete", name)
	return err
}

// IsDefaultBranch reports whether name is the repository's default branch.
// Consults refs/remotes/origin/HEAD, then init.defaultBranch, then falls
// back to the literal names "main"/"master" (spec.md §4.1).
func (b Branches) IsDefaultBranch(ctx context.Context, name string) bool {
	if out, err := b.a.run(ctx, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		return strings.TrimPrefix(out, "refs/remotes/origin/") == name
	}
	if out, err := b.a.run(ctx, "config", "init.defaultBranch"); err == nil && out != "" {
		return out == name
	}
	return name == "main" || name == "master"
}
