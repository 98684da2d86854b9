package acceptance_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// S2 – Diamond with conflict (spec.md §8): A→B, A→C, B→D, C→D; B and C both
// edit the same line of foo.ts; D's merge-fi hits a real git conflict,
// resolved by the merge helper's "prefer theirs" policy; no conflict
// markers survive into the final merge.
var _ = Describe("diamond with conflicting siblings", func() {
	var tmpDir, repoDir, specPath, agentPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-diamond-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "foo.ts"), "line1\nORIGINAL\nline3\n")
		runGit(repoDir, "add", "foo.ts")
		runGit(repoDir, "commit", "-m", "initial commit")

		agentPath = writeFakeAgent(tmpDir)

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: diamond
baseBranch: main
targetBranch: main
maxParallel: 2

jobs:
  - producer_id: diamond/a
    task: seed a marker file
    work: "touch a.txt"
  - producer_id: diamond/b
    task: edit foo.ts to X
    dependencies: ["diamond/a"]
    work: "sed -i 's/ORIGINAL/X/' foo.ts"
  - producer_id: diamond/c
    task: edit foo.ts to Y
    dependencies: ["diamond/a"]
    work: "sed -i 's/ORIGINAL/Y/' foo.ts"
  - producer_id: diamond/d
    task: fan-in marker file
    dependencies: ["diamond/b", "diamond/c"]
    work: "touch d.txt"
`)
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("resolves the merge-fi conflict and lands a clean final merge", func() {
		out := mustPlango(repoDir, "enqueue", specPath)
		planID := strings.TrimSpace(out)
		mustPlango(repoDir, "watch", planID, "--interval", "1", "--agent-command", agentPath)

		status := mustPlango(repoDir, "status", planID, "--agent-command", agentPath)
		Expect(status).NotTo(ContainSubstring("failed"))

		content, err := os.ReadFile(filepath.Join(repoDir, "foo.ts"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).NotTo(ContainSubstring("<<<<<<<"))
		Expect(string(content)).NotTo(ContainSubstring("======="))
		Expect(string(content)).NotTo(ContainSubstring(">>>>>>>"))
		Expect(string(content)).To(ContainSubstring("Y"))

		Expect(filepath.Join(repoDir, "a.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(repoDir, "d.txt")).To(BeAnExistingFile())

		mainLog := runGitOutput(repoDir, "log", "-1", "--format=%s", "main")
		Expect(strings.TrimSpace(mainLog)).To(ContainSubstring("final merge from snapshot"))
	})
})
