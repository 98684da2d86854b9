// Package cli is the cobra command tree for the plango binary, generalizing
// the teacher's internal/cli "line" commands (one per concern-chain
// concern) into one per plan-DAG operation (spec.md §4.7).
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/jobexec"
	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/scheduler"
	"github.com/re-cinq/plango/internal/store"
)

// repoPath and worktreeRoot are persistent flags shared by every command,
// mirroring the teacher's single --path/-p flag generalized to the two
// roots a plan needs (the checked-out repo, and where per-job worktrees
// live).
var (
	repoPath     string
	worktreeRoot string
	dbPath       string
	agentCommand string
)

// Runtime wires a PlanStore, Scheduler, and Job Executor factory the way
// the teacher's run.go wires a Config + LogManager for the daemon loop,
// generalized from one concern-chain engine to the full component set
// spec.md §4 names.
type Runtime struct {
	Store     store.PlanStore
	Scheduler *scheduler.Scheduler
	Log       *slog.Logger
	LogDir    string
}

// newRuntime composes the store/scheduler/job-executor stack from the
// resolved persistent flags. Every command calls this first.
func newRuntime() (*Runtime, error) {
	log := slog.Default()

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
		return nil, fmt.Errorf("%s is not a git repository (no .git directory)", abs)
	}

	resolvedDB := dbPath
	if resolvedDB == "" {
		resolvedDB = filepath.Join(abs, ".orchestrator", "plango.db")
	}
	if err := os.MkdirAll(filepath.Dir(resolvedDB), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(resolvedDB), err)
	}
	st, err := store.NewSQLStore(resolvedDB)
	if err != nil {
		return nil, fmt.Errorf("opening plan store: %w", err)
	}

	var delegate agent.Delegator
	if agentCommand != "" {
		delegate = &agent.ExecDelegator{Command: agentCommand}
	}

	newAdapter := func(dir string) *gitadapter.Adapter { return gitadapter.New(dir) }

	logDir := filepath.Join(abs, ".orchestrator", "logs")
	_ = os.MkdirAll(logDir, 0o755)

	var execMu sync.Mutex
	execByPlan := make(map[uuid.UUID]*jobexec.Executor)
	jobExecutorFor := func(p *plan.Plan) *jobexec.Executor {
		execMu.Lock()
		defer execMu.Unlock()
		if e, ok := execByPlan[p.ID]; ok {
			return e
		}
		e := jobexec.New(delegate, newAdapter)
		e.LogDir = logDir
		e.Log = log
		execByPlan[p.ID] = e
		return e
	}

	sched := scheduler.New(jobExecutorFor, newAdapter, resolveWorktreeRoot(abs), scheduler.Hooks{})
	sched.Log = log

	return &Runtime{Store: st, Scheduler: sched, Log: log, LogDir: logDir}, nil
}

// NodeLogPath returns the persisted log path for a node, matching
// jobexec.Executor.LogPathFor's layout (<LogDir>/<nodeID>.log).
func (r *Runtime) NodeLogPath(nodeID uuid.UUID) string {
	return filepath.Join(r.LogDir, nodeID.String()+".log")
}

// Close releases the underlying store handle.
func (r *Runtime) Close() error {
	return r.Store.Close()
}

func resolveWorktreeRoot(repo string) string {
	if worktreeRoot != "" {
		return worktreeRoot
	}
	return filepath.Join(repo, ".orchestrator", "worktrees")
}
