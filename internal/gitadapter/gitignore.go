package gitadapter

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Gitignore is the gitignore-bookkeeping namespace (spec.md §4.1).
type Gitignore struct{ a *Adapter }

// EnsureGitignoreEntries idempotently appends any of entries missing from
// the repository's top-level .gitignore, preserving the existing file
// (spec.md §4.1, §6 ".orchestrator and the worktreeRoot path are
// idempotently added to .gitignore").
func (g Gitignore) EnsureGitignoreEntries(ctx context.Context, entries []string) error {
	path := filepath.Join(g.a.Dir, ".gitignore")

	existing := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(data)))
		for sc.Scan() {
			existing[strings.TrimSpace(sc.Text())] = true
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	var toAdd []string
	for _, e := range entries {
		if !existing[e] {
			toAdd = append(toAdd, e)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	for _, e := range toAdd {
		if _, err := f.WriteString(e + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// orchestratorManagedPrefixes are path prefixes a diff hunk is allowed to
// touch for IsDiffOnlyOrchestratorChanges to still report true.
var orchestratorManagedPrefixes = []string{".orchestrator/"}

// IsDiffOnlyOrchestratorChanges scans a unified diff and reports true iff
// every hunk only touches orchestrator-managed paths (spec.md §4.1, used by
// the merge-fi stash-pop recovery protocol to decide whether a stashed
// worktree-merged diff can be dropped silently).
func IsDiffOnlyOrchestratorChanges(diff string) bool {
	touched := false
	sc := bufio.NewScanner(strings.NewReader(diff))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		touched = true
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return false
		}
		path := strings.TrimPrefix(fields[3], "b/")
		if !hasManagedPrefix(path) {
			return false
		}
	}
	return touched
}

func hasManagedPrefix(path string) bool {
	for _, p := range orchestratorManagedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// filesMatchIgnorePatterns reports whether every path in files matches gi,
// with the special case that the presence of a literal ".lineignore"-style
// marker file in the list always forces false (don't treat the ignore file
// itself as evidence of an ignorable diff). Grounded on the teacher's
// internal/engine/ignore_test.go fixture.
func filesMatchIgnorePatterns(files []string, gi *ignore.GitIgnore) bool {
	if gi == nil || len(files) == 0 {
		return false
	}
	for _, f := range files {
		if f == ".plangoignore" {
			return false
		}
		if !gi.MatchesPath(f) {
			return false
		}
	}
	return true
}

// CompilePatterns compiles raw gitignore-style lines into a matcher, for
// callers that want filesMatchIgnorePatterns-style matching against a
// configured pattern set.
func CompilePatterns(patterns []string) *ignore.GitIgnore {
	return ignore.CompileIgnoreLines(patterns...)
}
