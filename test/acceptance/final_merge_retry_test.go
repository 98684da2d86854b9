package acceptance_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// S6 – Final merge retry (spec.md §8, §4.6): the target branch advances
// with a conflicting change between snapshot creation and the Final Merge
// Executor's attempt, exhausting both attempts and parking the plan in
// awaiting-final-merge. Once that conflict is cleared, `plango retry`
// re-invokes the Final Merge Executor and it succeeds.
var _ = Describe("final merge retry", func() {
	var tmpDir, repoDir, specPath, baseSHA string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-finalretry-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "file.txt"), "base\n")
		runGit(repoDir, "add", "file.txt")
		runGit(repoDir, "commit", "-m", "initial commit")
		baseSHA = strings.TrimSpace(runGitOutput(repoDir, "rev-parse", "main"))

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: conflict-on-retarget
baseBranch: main
targetBranch: main
maxParallel: 1

jobs:
  - producer_id: conflict/job
    task: change file.txt
    work: "sed -i 's/base/job-change/' file.txt"
`)
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("exhausts the final merge on a conflicting target advance, then succeeds on retry", func() {
		out := mustPlango(repoDir, "enqueue", specPath)
		planID := strings.TrimSpace(out)

		// The snapshot branch is rooted at baseSHA; advance main with a
		// conflicting edit to the same line before the final merge runs.
		writeFile(filepath.Join(repoDir, "file.txt"), "main-change\n")
		runGit(repoDir, "add", "file.txt")
		runGit(repoDir, "commit", "-m", "main advances concurrently")

		mustPlango(repoDir, "watch", planID, "--interval", "1")

		status := mustPlango(repoDir, "status", planID)
		Expect(status).To(ContainSubstring("awaiting-final-merge"),
			"rebasing the snapshot onto the advanced, conflicting main should exhaust both final-merge attempts")

		// Clear the conflict the way an operator would: back main out to
		// the commit the snapshot already accounts for.
		runGit(repoDir, "reset", "--hard", baseSHA)

		retryOut := mustPlango(repoDir, "retry", planID)
		Expect(retryOut).To(ContainSubstring("final merge succeeded"))

		finalStatus := mustPlango(repoDir, "status", planID)
		Expect(finalStatus).To(ContainSubstring("succeeded"))
		Expect(finalStatus).NotTo(ContainSubstring("awaiting-final-merge"))

		content, err := os.ReadFile(filepath.Join(repoDir, "file.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("job-change"))

		mainLog := runGitOutput(repoDir, "log", "-1", "--format=%s", "main")
		Expect(strings.TrimSpace(mainLog)).To(ContainSubstring("final merge from snapshot"))
	})
})
