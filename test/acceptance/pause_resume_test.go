package acceptance_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countSucceeded returns how many "succeeded" lines plango status reports.
func countSucceeded(repoDir, planID string) int {
	return strings.Count(mustPlango(repoDir, "status", planID), "succeeded at")
}

// S5 – Pause mid-run (spec.md §8): 8 parallel-ready jobs, maxParallel=2;
// pausing partway through lets any already-dispatched round of jobs finish,
// but schedules nothing further until resumed, after which the remaining
// jobs drain respecting the same cap. Each round of Tick dispatches up to
// maxParallel jobs and blocks until that round finishes (scheduler.go), so
// the dispatched-count a pause catches varies with round timing; the
// invariant this test pins down is "no progress while paused, full drain
// once resumed" rather than an exact count at the moment pause lands.
var _ = Describe("pause mid-run", func() {
	var tmpDir, repoDir, specPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-pause-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "hello.txt"), "hello\n")
		runGit(repoDir, "add", "hello.txt")
		runGit(repoDir, "commit", "-m", "initial commit")

		var jobs strings.Builder
		for i := 1; i <= 8; i++ {
			fmt.Fprintf(&jobs, "  - producer_id: fanout/job-%d\n    task: job %d\n    work: \"sleep 1 && touch job-%d.txt\"\n", i, i, i)
		}

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: fanout
baseBranch: main
targetBranch: main
maxParallel: 2

jobs:
`+jobs.String())
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("stops scheduling new jobs while paused and resumes the rest afterward", func() {
		out := mustPlango(repoDir, "enqueue", specPath)
		planID := strings.TrimSpace(out)

		watch := exec.Command(binaryPath, "-C", repoDir, "watch", planID, "--interval", "1")
		Expect(watch.Start()).To(Succeed())

		// Let at least one round of 2 jobs dispatch and finish.
		time.Sleep(2 * time.Second)
		mustPlango(repoDir, "pause", planID)

		paused := mustPlango(repoDir, "status", planID)
		Expect(paused).To(ContainSubstring("(paused)"))

		before := countSucceeded(repoDir, planID)
		Expect(before).To(BeNumerically(">", 0))
		Expect(before).To(BeNumerically("<", 8), "the plan should not have finished before it was paused")

		// Hold the pause and confirm no further progress is made.
		time.Sleep(3 * time.Second)
		after := countSucceeded(repoDir, planID)
		Expect(after).To(Equal(before), "no further job should be scheduled while the plan is paused")

		mustPlango(repoDir, "resume", planID)
		Expect(watch.Wait()).To(Succeed())

		final := mustPlango(repoDir, "status", planID)
		Expect(strings.Count(final, "succeeded at")).To(Equal(8))
		Expect(final).NotTo(ContainSubstring("failed"))
	})
})
