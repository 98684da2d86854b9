package acceptance_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// S1 – Linear success (spec.md §8): A→B→C, each a trivial shell job, all
// three succeed and a single final merge lands a two-parent commit on main.
var _ = Describe("linear success", func() {
	var tmpDir, repoDir, specPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-linear-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "hello.txt"), "hello\n")
		runGit(repoDir, "add", "hello.txt")
		runGit(repoDir, "commit", "-m", "initial commit")

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: linear-chain
baseBranch: main
targetBranch: main
maxParallel: 1

jobs:
  - producer_id: chain/job-a
    task: job a
    work: "echo ok"
  - producer_id: chain/job-b
    task: job b
    dependencies: ["chain/job-a"]
    work: "echo ok"
  - producer_id: chain/job-c
    task: job c
    dependencies: ["chain/job-b"]
    work: "echo ok"
`)
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("runs all three jobs to success and merges once into main", func() {
		planID := enqueueAndWatch(repoDir, specPath)

		status := mustPlango(repoDir, "status", planID)
		Expect(status).To(ContainSubstring("chain/job-a"))
		Expect(status).To(ContainSubstring("chain/job-b"))
		Expect(status).To(ContainSubstring("chain/job-c"))
		Expect(status).NotTo(ContainSubstring("failed"))

		mainLog := runGitOutput(repoDir, "log", "-1", "--format=%s", "main")
		Expect(strings.TrimSpace(mainLog)).To(ContainSubstring("final merge from snapshot"))

		parents := strings.Fields(runGitOutput(repoDir, "log", "-1", "--format=%P", "main"))
		Expect(parents).To(HaveLen(2), "final merge should be a two-parent commit")

		dirty := runGitOutput(repoDir, "status", "--porcelain")
		Expect(strings.TrimSpace(dirty)).To(BeEmpty(), "working tree should be clean")
	})
})
