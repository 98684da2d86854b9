// Package gitadapter is the typed façade over the git CLI (spec.md §4.1):
// branches, worktrees, merge, repository, and gitignore namespaces. All
// other components consume git only through this package.
package gitadapter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/re-cinq/plango/internal/errkind"
)

// Retry constants for transient git errors (grounded on the teacher's
// internal/git.Repo.run backoff loop).
const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts   = 6
	retryMultiplier    = 2
)

// sleepFunc is replaced in tests to avoid real delays.
var sleepFunc = time.Sleep

// Adapter wraps git operations for one repository checkout. Branches,
// Worktrees, Merge, Repository, and Gitignore are namespace accessors over
// the same underlying repo directory.
type Adapter struct {
	Dir string
}

// New creates an Adapter rooted at dir (the main repo, a worktree, or any
// directory inside either — git resolves the checkout itself).
func New(dir string) *Adapter {
	return &Adapter{Dir: dir}
}

// Branches returns the branches namespace.
func (a *Adapter) Branches() Branches { return Branches{a} }

// Worktrees returns the worktrees namespace.
func (a *Adapter) Worktrees() Worktrees { return Worktrees{a} }

// Merge returns the merge namespace.
func (a *Adapter) Merge() Merge { return Merge{a} }

// Repository returns the repository namespace.
func (a *Adapter) Repository() Repository { return Repository{a} }

// Gitignore returns the gitignore namespace.
func (a *Adapter) Gitignore() Gitignore { return Gitignore{a} }

// run executes a git command in dir, retrying transient failures
// (index.lock, ref locks) with exponential backoff.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	delay := retryInitialDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		errMsg := strings.TrimSpace(string(out))
		lastErr = fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errMsg, err)
		if !errkind.IsTransientMessage(errMsg) || attempt == retryMaxAttempts-1 {
			return "", errkind.Wrap(classify(errMsg), lastErr)
		}
		sleepFunc(delay)
		delay *= retryMultiplier
	}
	return "", lastErr
}

func (a *Adapter) run(ctx context.Context, args ...string) (string, error) {
	return run(ctx, a.Dir, args...)
}

// classify maps a raw git stderr message to an errkind.Kind for non-success
// exits that aren't retried as transient.
func classify(errMsg string) errkind.Kind {
	switch {
	case errkind.IsTransientMessage(errMsg):
		return errkind.Transient
	case strings.Contains(errMsg, "already exists"):
		return errkind.Unknown
	case strings.Contains(errMsg, "CONFLICT"):
		return errkind.MergeConflict
	case strings.Contains(errMsg, "not something we can merge"),
		strings.Contains(errMsg, "unknown revision"),
		strings.Contains(errMsg, "did not match any"):
		return errkind.ValidationFailed
	default:
		return errkind.Unknown
	}
}
