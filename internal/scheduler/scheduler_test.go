package scheduler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/jobexec"
	"github.com/re-cinq/plango/internal/plan"
)

// runGit runs git in dir, failing the test on error. Mirrors the
// test/acceptance helpers' runGit, kept local here since this package's
// tests are plain *testing.T rather than ginkgo specs.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, "", "init", dir)
	runGit(t, dir, "checkout", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("base\n"), 0o644))
	runGit(t, dir, "add", "file.txt")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

// shellNode builds a ready-to-dispatch root job node whose Work runs cmd.
func shellNode(producerID, cmd string) *plan.Node {
	return &plan.Node{
		ID:         uuid.New(),
		Kind:       plan.KindJob,
		ProducerID: producerID,
		Task:       producerID,
		Work:       &plan.WorkSpec{Kind: plan.WorkShell, Command: cmd},
		State:      plan.NewNodeState(),
	}
}

func newScheduler(worktreeRoot string, hooks Hooks) *Scheduler {
	je := jobexec.New(nil, gitadapter.New)
	return New(func(p *plan.Plan) *jobexec.Executor { return je }, gitadapter.New, worktreeRoot, hooks)
}

// TestTickRespectsMaxParallel exercises spec.md §8 universal property 1:
// the set of nodes in running|scheduled never exceeds maxParallel.
func TestTickRespectsMaxParallel(t *testing.T) {
	repo := newTestRepo(t)
	worktreeRoot := t.TempDir()

	const maxParallel = 2
	const jobCount = 6

	var (
		mu         sync.Mutex
		running    int
		maxSeen    int
		terminated int32
	)

	hooks := Hooks{
		OnNodeStatusChanged: func(p *plan.Plan, node *plan.Node) {
			mu.Lock()
			defer mu.Unlock()
			switch node.State.Status {
			case plan.NodeRunning:
				running++
				if running > maxSeen {
					maxSeen = running
				}
			case plan.NodeSucceeded, plan.NodeFailed:
				running--
				atomic.AddInt32(&terminated, 1)
			}
		},
	}
	s := newScheduler(worktreeRoot, hooks)

	p := &plan.Plan{
		ID:           uuid.New(),
		Spec:         plan.Spec{Name: "fanout", MaxParallel: maxParallel},
		RepoPath:     repo,
		BaseBranch:   "main",
		Status:       plan.StatusPending,
		Nodes:        map[uuid.UUID]*plan.Node{},
	}
	for i := 0; i < jobCount; i++ {
		n := shellNode(uuid.NewString()[:8], "sleep 0.15")
		p.Nodes[n.ID] = n
		p.Order = append(p.Order, n.ID)
	}

	require.NoError(t, s.Enqueue(context.Background(), p))

	ctx := context.Background()
	deadline := time.Now().Add(20 * time.Second)
	for atomic.LoadInt32(&terminated) < jobCount && time.Now().Before(deadline) {
		s.Tick(ctx, p)
	}

	require.EqualValues(t, jobCount, atomic.LoadInt32(&terminated), "all jobs should have reached a terminal state")
	require.LessOrEqualf(t, maxSeen, maxParallel, "observed %d concurrently-running nodes, want <= maxParallel(%d)", maxSeen, maxParallel)
}

// TestReevaluateDependentsGatesOnAllDependencies exercises spec.md §8
// universal property 2: a node transitions to ready (and from there to
// running) only once every dependency has succeeded.
func TestReevaluateDependentsGatesOnAllDependencies(t *testing.T) {
	repo := newTestRepo(t)
	worktreeRoot := t.TempDir()

	var statusLog []plan.NodeStatus
	var mu sync.Mutex
	s := newScheduler(worktreeRoot, Hooks{
		OnNodeStatusChanged: func(p *plan.Plan, node *plan.Node) {
			if node.ProducerID != "child" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			statusLog = append(statusLog, node.State.Status)
		},
	})

	parentA := shellNode("parent-a", "sleep 0.1 && echo a > parent-a.txt")
	parentB := shellNode("parent-b", "sleep 0.2 && echo b > parent-b.txt")
	child := shellNode("child", "echo done > child.txt")
	child.DependsOn = []uuid.UUID{parentA.ID, parentB.ID}
	parentA.DependentOf = []uuid.UUID{child.ID}
	parentB.DependentOf = []uuid.UUID{child.ID}

	p := &plan.Plan{
		ID:         uuid.New(),
		Spec:       plan.Spec{Name: "join", MaxParallel: 2},
		RepoPath:   repo,
		BaseBranch: "main",
		Status:     plan.StatusPending,
		Nodes: map[uuid.UUID]*plan.Node{
			parentA.ID: parentA,
			parentB.ID: parentB,
			child.ID:   child,
		},
		Order: []uuid.UUID{parentA.ID, parentB.ID, child.ID},
	}

	require.NoError(t, s.Enqueue(context.Background(), p))
	require.Equal(t, plan.NodePending, child.State.Status, "child has dependencies, so it must not start ready")

	ctx := context.Background()
	deadline := time.Now().Add(20 * time.Second)
	for p.Status != plan.StatusSucceeded && time.Now().Before(deadline) {
		s.Tick(ctx, p)
	}
	require.Equal(t, plan.StatusSucceeded, p.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statusLog)
	require.NotEqual(t, plan.NodeRunning, statusLog[0], "child must not run before both parents are observed")
	for _, st := range statusLog {
		if st == plan.NodeRunning {
			require.Equal(t, plan.NodeSucceeded, parentA.State.Status, "child ran before parent-a succeeded")
			require.Equal(t, plan.NodeSucceeded, parentB.State.Status, "child ran before parent-b succeeded")
		}
	}
}

// TestEnqueueBranchSelection exercises spec.md §8 universal property 8's
// IsDefaultBranch rule as seen through Enqueue's target-branch choice
// (spec.md §4.1/§4.5): a plan targeting the default branch gets an
// auto-generated branch; a plan targeting a non-default branch reuses it
// directly.
func TestEnqueueBranchSelection(t *testing.T) {
	t.Run("default branch gets an auto-generated target", func(t *testing.T) {
		repo := newTestRepo(t)
		s := newScheduler(t.TempDir(), Hooks{})

		n := shellNode("only-job", "echo ok")
		p := &plan.Plan{
			ID:         uuid.New(),
			Spec:       plan.Spec{Name: "auto-target", MaxParallel: 1, BranchPrefix: "orchestrator/plan"},
			RepoPath:   repo,
			BaseBranch: "main",
			Status:     plan.StatusPending,
			Nodes:      map[uuid.UUID]*plan.Node{n.ID: n},
			Order:      []uuid.UUID{n.ID},
		}
		require.NoError(t, s.Enqueue(context.Background(), p))
		require.Equal(t, "orchestrator/plan/"+p.ID.String(), p.TargetBranch)
	})

	t.Run("non-default branch is reused as its own target", func(t *testing.T) {
		repo := newTestRepo(t)
		runGit(t, repo, "checkout", "-b", "feature/x")
		runGit(t, repo, "checkout", "main")

		s := newScheduler(t.TempDir(), Hooks{})
		n := shellNode("only-job", "echo ok")
		p := &plan.Plan{
			ID:         uuid.New(),
			Spec:       plan.Spec{Name: "feature-target", MaxParallel: 1, BranchPrefix: "orchestrator/plan"},
			RepoPath:   repo,
			BaseBranch: "feature/x",
			Status:     plan.StatusPending,
			Nodes:      map[uuid.UUID]*plan.Node{n.ID: n},
			Order:      []uuid.UUID{n.ID},
		}
		require.NoError(t, s.Enqueue(context.Background(), p))
		require.Equal(t, "feature/x", p.TargetBranch)
	})
}
