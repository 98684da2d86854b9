package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/onsi/gomega"
)

func runGit(dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	ExpectWithOffset(1, err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
}

func runGitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	ExpectWithOffset(1, err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
	return string(out)
}

func writeFile(path, content string) {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	err = os.WriteFile(path, []byte(content), 0644)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
}

// runPlango invokes the built plango binary against repoDir, returning
// combined stdout+stderr. Every scenario test drives the CLI exactly the
// way a user would, rather than calling internal packages directly.
func runPlango(repoDir string, args ...string) (string, error) {
	full := append([]string{"-C", repoDir}, args...)
	cmd := exec.Command(binaryPath, full...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// mustPlango is runPlango with an immediate test failure on error.
func mustPlango(repoDir string, args ...string) string {
	out, err := runPlango(repoDir, args...)
	ExpectWithOffset(1, err).NotTo(HaveOccurred(), "plango %v: %s", args, out)
	return out
}

// enqueueAndWatch enqueues a plan spec and watches it to a terminal status,
// returning the plan id.
func enqueueAndWatch(repoDir, specPath string) string {
	out := mustPlango(repoDir, "enqueue", specPath)
	planID := strings.TrimSpace(out)
	mustPlango(repoDir, "watch", planID, "--interval", "1")
	return planID
}

// writeFakeAgent writes a deterministic stand-in for an AI coding agent,
// for scenarios that exercise the conflict-resolution and no-change-review
// prompts without a real model backing internal/agent.ExecDelegator. It
// always resolves a conflict by keeping the incoming ("theirs") side and,
// for the git-backed merge-fi/stash-pop prompt, stages and commits with the
// message the prompt itself specifies. Returns the script's path.
func writeFakeAgent(dir string) string {
	path := filepath.Join(dir, "fake-agent.sh")
	script := `#!/bin/sh
set -e
ctx="$1"
first_line=$(head -n 1 "$ctx")

case "$first_line" in
  "A git merge of"*|"A stash pop"*)
    for f in $(git diff --name-only --diff-filter=U); do
      awk '
        /^<<<<<<</ { skip=1; next }
        /^=======/ { skip=0; next }
        /^>>>>>>>/ { next }
        !skip { print }
      ' "$f" > "$f.plango-resolved"
      mv "$f.plango-resolved" "$f"
      git add "$f"
    done
    msg=$(grep -o 'commit with the message "[^"]*"' "$ctx" | sed 's/commit with the message "//; s/"$//')
    if [ -n "$msg" ]; then
      git commit -m "$msg" >/dev/null
    fi
    ;;
  "Resolve the merge conflict in"*)
    target=$(printf '%s' "$first_line" | sed -n 's/^Resolve the merge conflict in "\(.*\)" below\..*/\1/p')
    awk '
      /^<<<<<<</ { skip=1; next }
      /^=======/ { skip=0; next }
      /^>>>>>>>/ { next }
      !skip { print }
    ' "$target" > "$target.plango-resolved"
    mv "$target.plango-resolved" "$target"
    ;;
  "The task"*)
    echo '{"legitimate": true, "reason": "fake agent: no-op task"}'
    ;;
esac
echo '{"session_id":""}'
`
	writeFile(path, script)
	if err := os.Chmod(path, 0o755); err != nil {
		panic(err)
	}
	return path
}
