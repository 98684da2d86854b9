package acceptance_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// S3 – Tree-validation abort (spec.md §8, §4.2.5 property 4): a job whose
// work deletes most of a large tree produces a merge-ri result that keeps
// fewer than 80% of the richer side's files; the abort must fire before any
// ref moves, leaving refs/heads/main exactly where it started.
var _ = Describe("tree validation abort", func() {
	var tmpDir, repoDir, specPath, initialMain string

	const fileCount = 20
	const keepCount = 4 // 4/20 = 0.20, well under the 0.80 floor

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "plango-treeval-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		for i := 1; i <= fileCount; i++ {
			writeFile(filepath.Join(repoDir, fmt.Sprintf("f%d.txt", i)), "x\n")
		}
		runGit(repoDir, "add", ".")
		runGit(repoDir, "commit", "-m", "seed large tree")
		initialMain = strings.TrimSpace(runGitOutput(repoDir, "rev-parse", "main"))

		var rm strings.Builder
		for i := keepCount + 1; i <= fileCount; i++ {
			rm.WriteString("rm -f f" + strconv.Itoa(i) + ".txt; ")
		}

		specPath = filepath.Join(repoDir, "plan-spec.yaml")
		writeFile(specPath, `
name: shrink-tree
baseBranch: main
targetBranch: main
maxParallel: 1

jobs:
  - producer_id: shrink/job
    task: delete most of the tree
    work: "`+rm.String()+`true"
`)
	})

	AfterEach(func() { cleanupTestRepo(repoDir, tmpDir) })

	It("aborts merge-ri and leaves main untouched", func() {
		out := mustPlango(repoDir, "enqueue", specPath)
		planID := strings.TrimSpace(out)
		mustPlango(repoDir, "watch", planID, "--interval", "1")

		status := mustPlango(repoDir, "status", planID)
		Expect(status).To(ContainSubstring("failed"))
		Expect(status).To(ContainSubstring("ratio"))

		finalMain := strings.TrimSpace(runGitOutput(repoDir, "rev-parse", "main"))
		Expect(finalMain).To(Equal(initialMain), "refs/heads/main must be unchanged after a tree-validation abort")
	})
})
