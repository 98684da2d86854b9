package acceptance_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// S4 – Dirty target preservation (spec.md §8, §4.2.5/§4.6 working-tree
// safety rule): the user has an uncommitted edit to Cargo.lock sitting on
// main when the plan's final merge lands. The final merge must still move
// refs/heads/main, but the user's uncommitted Cargo.lock edit must survive,
// and the plan's own changes must become visible in the working tree.
var _ = Describe("dirty target preservation", func() {
	var tmpDir, repoDir, specPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-dirtytarget-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "Cargo.lock"), "version = 1\n")
		runGit(repoDir, "add", "Cargo.lock")
		runGit(repoDir, "commit", "-m", "initial commit")

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: touch-file
baseBranch: main
targetBranch: main
maxParallel: 1

jobs:
  - producer_id: touch/job
    task: add a new file
    work: "touch new_file.txt"
`)

		// Simulate the user editing Cargo.lock on main, uncommitted, before
		// the plan's final merge runs.
		writeFile(filepath.Join(repoDir, "Cargo.lock"), "version = 1\nuser-pinned-dependency = true\n")
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("preserves the user's dirty Cargo.lock edit while landing the plan's own changes", func() {
		planID := enqueueAndWatch(repoDir, specPath)

		status := mustPlango(repoDir, "status", planID)
		Expect(status).NotTo(ContainSubstring("failed"))

		mainLog := runGitOutput(repoDir, "log", "-1", "--format=%s", "main")
		Expect(strings.TrimSpace(mainLog)).To(ContainSubstring("final merge from snapshot"))

		lockContent, err := os.ReadFile(filepath.Join(repoDir, "Cargo.lock"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(lockContent)).To(ContainSubstring("user-pinned-dependency = true"),
			"the user's uncommitted Cargo.lock edit must survive the final merge")

		dirty := runGitOutput(repoDir, "status", "--porcelain")
		Expect(dirty).To(ContainSubstring("Cargo.lock"), "Cargo.lock should still show as locally modified")

		Expect(filepath.Join(repoDir, "new_file.txt")).To(BeAnExistingFile(),
			"the plan's own change must be visible in the working tree")
	})
})
