// Package jobexec drives one job node through its phase pipeline in
// canonical order and tracks live executions for cancellation (spec.md
// §4.4), generalized from the teacher's LogManager (a mutex-guarded map of
// open log files) into a mutex-guarded map of in-flight executions.
package jobexec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/phase"
	"github.com/re-cinq/plango/internal/plan"
)

// execution tracks the live state of one in-flight node attempt.
type execution struct {
	aborted bool
	process *exec.Cmd
	logs    []string
	file    *os.File
}

// Executor runs job nodes' phase pipelines and exposes cancellation.
// Grounded on the teacher's engine.LogManager for the mutex-guarded map
// shape (spec.md §9 "Global mutable state").
type Executor struct {
	Adapter  func(worktreePath string) *gitadapter.Adapter
	Delegate agent.Delegator

	// LogDir, if set, persists each node attempt's log lines to
	// LogDir/<nodeID>.log so a "logs" command can tail a run after
	// RunNode returns and its in-memory execution entry is gone.
	// Grounded on the teacher's LogManager.getLogFile/LogPathFor, which
	// opens one append-only file per concern under os.TempDir.
	LogDir string
	Log    *slog.Logger

	mu         sync.Mutex
	byKey      map[string]string              // "planID:nodeID" -> executionKey
	executions map[string]*execution
}

// LogPathFor returns the persisted log path for a node, for display and for
// a "logs" command to open directly — valid only when LogDir is set.
func (e *Executor) LogPathFor(nodeID uuid.UUID) string {
	return filepath.Join(e.LogDir, fmt.Sprintf("%s.log", nodeID))
}

// New constructs an Executor. delegate may be nil when no node in the plan
// ever runs agent work; phase dispatch will fail loudly if one does.
// newAdapter builds a gitadapter.Adapter rooted at a given directory (a
// job's worktree, or the main repo for setup).
func New(delegate agent.Delegator, newAdapter func(dir string) *gitadapter.Adapter) *Executor {
	return &Executor{
		Delegate:   delegate,
		Adapter:    newAdapter,
		Log:        slog.Default(),
		byKey:      make(map[string]string),
		executions: make(map[string]*execution),
	}
}

// log returns e.Log, falling back to slog.Default().
func (e *Executor) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// Outcome is what RunNode reports back to the scheduler.
type Outcome struct {
	Success     bool
	Error       error
	FailedPhase plan.PhaseName
	Commit      string
	SessionID   string
	Metrics     *agent.Metrics

	// ResumeFromPhase carries a failed phase's OverrideResumeFromPhase, if
	// any, for the scheduler's auto-heal retry (spec.md §4.4).
	ResumeFromPhase plan.PhaseName
	NoAutoHeal      bool
}

// PhaseSetup names the Job Executor's own worktree-creation step, run
// before the six Phase Executors (spec.md §4.4: "setup → prechecks →
// work → ..."). It is not one of the Phase Executors themselves.
const PhaseSetup plan.PhaseName = "setup"

// RunNode creates the node's worktree if it doesn't have one yet, then runs
// p's phases in canonical order, starting at resumeFrom (or the first
// phase if empty), stopping at the first failed phase; that phase's
// OverrideResumeFromPhase and NoAutoHeal are passed back in the Outcome
// (spec.md §4.4, §4.2 phase contract).
func (e *Executor) RunNode(ctx context.Context, p *plan.Plan, node *plan.Node, worktreeRoot string, resumeFrom plan.PhaseName) Outcome {
	key := e.register(p.ID, node.ID)
	defer e.unregister(p.ID, node.ID, key)

	if node.State.WorktreePath == "" {
		if err := e.setupWorktree(ctx, p, node, worktreeRoot); err != nil {
			node.State.FailedPhase = PhaseSetup
			node.State.LastError = err.Error()
			return Outcome{Success: false, Error: err, FailedPhase: PhaseSetup}
		}
	}
	worktreePath := node.State.WorktreePath

	adapter := e.Adapter(worktreePath)
	phases := plan.OrderedPhases()
	startIdx := 0
	if resumeFrom != "" {
		for i, ph := range phases {
			if ph == resumeFrom {
				startIdx = i
				break
			}
		}
	}

	var lastCommit, lastSession string
	var lastMetrics *agent.Metrics

	isLeaf := len(node.DependentOf) == 0
	isMultiDep := len(node.DependsOn) >= 2

	for i := startIdx; i < len(phases); i++ {
		ph := phases[i]
		if ph == plan.PhaseMergeFI && !isMultiDep {
			node.State.Steps[ph] = plan.StepSkipped
			continue
		}
		if ph == plan.PhaseMergeRI && !isLeaf {
			node.State.Steps[ph] = plan.StepSkipped
			continue
		}

		node.State.Steps[ph] = plan.StepRunning
		plog := e.log().With(slog.String("plan_id", p.ID.String()), slog.String("node_id", node.ID.String()), slog.String("phase", string(ph)))
		plog.Debug("phase starting")

		pc := &phase.Context{
			Plan:         p,
			Node:         node,
			WorktreePath: worktreePath,
			ExecutionKey: key,
			Phase:        ph,
			Work:         phaseWorkSpec(node, ph),
			BaseCommit:   node.State.BaseCommit,
			PriorSession: lastSession,
			Adapter:      adapter,
			Delegate:     e.Delegate,
			LogOutput: func(kind, text string) {
				e.appendLog(key, fmt.Sprintf("[%s] %s", kind, text))
			},
			IsAborted: func() bool { return e.isAborted(key) },
			SetProcess: func(cmd *exec.Cmd) { e.setProcess(key, cmd) },
			SetStart:   func() {},
			SetAgent:   func(bool) {},
			RecentLog:  func() []string { return e.recentLog(key) },
		}
		if ph == plan.PhaseMergeFI {
			pc.SetRemainingDependencyCommits(remainingDependencyCommits(p, node))
		}

		res := phase.Dispatch(ctx, pc)

		if res.Commit != "" {
			lastCommit = res.Commit
		}
		if res.SessionID != "" {
			lastSession = res.SessionID
			node.State.SessionID = res.SessionID
		}
		if res.Metrics != nil {
			lastMetrics = res.Metrics
		}

		if !res.Success {
			phaseErr := res.Error
			if phaseErr == nil {
				phaseErr = fmt.Errorf("phase %s failed (exit code %d)", ph, res.ExitCode)
			}
			node.State.Steps[ph] = plan.StepFailed
			node.State.LastError = phaseErr.Error()
			node.State.FailedPhase = ph
			plog.Error("phase failed", slog.Any("error", phaseErr))
			return Outcome{
				Success:         false,
				Error:           phaseErr,
				FailedPhase:     ph,
				Commit:          lastCommit,
				SessionID:       lastSession,
				Metrics:         lastMetrics,
				ResumeFromPhase: res.OverrideResumeFromPhase,
				NoAutoHeal:      res.NoAutoHeal,
			}
		}

		node.State.Steps[ph] = plan.StepSucceeded
		plog.Debug("phase succeeded")
	}

	node.State.CompletedCommit = lastCommit
	return Outcome{Success: true, Commit: lastCommit, SessionID: lastSession, Metrics: lastMetrics}
}

// setupWorktree creates node's per-job worktree, detached at its base
// commit: the base branch (or node.BaseBranchOverride) for a root node, or
// its first dependency's completed commit otherwise (spec.md §4.2.4: "the
// worktree was created at the first dependency's commit").
func (e *Executor) setupWorktree(ctx context.Context, p *plan.Plan, node *plan.Node, worktreeRoot string) error {
	a := e.Adapter(p.RepoPath)

	var baseCommit string
	var err error
	if len(node.DependsOn) == 0 {
		branch := p.BaseBranch
		if node.BaseBranchOverride != "" {
			branch = node.BaseBranchOverride
		}
		baseCommit, err = a.Branches().GetCommit(ctx, branch)
		if err != nil {
			return fmt.Errorf("resolving base branch %s: %w", branch, err)
		}
	} else {
		deps := p.Dependencies(node)
		baseCommit = deps[0].State.CompletedCommit
	}

	path := worktreeRoot + "/" + node.ID.String()
	if err := a.Worktrees().Create(ctx, gitadapter.CreateOptions{
		Path:                  path,
		Commitish:             baseCommit,
		Detach:                true,
		AdditionalSymlinkDirs: p.Spec.AdditionalSymlinks,
	}); err != nil {
		return fmt.Errorf("creating worktree for node %s: %w", node.ID, err)
	}

	node.State.WorktreePath = path
	node.State.BaseCommit = baseCommit
	return nil
}

// remainingDependencyCommits returns the completed commits of node's
// dependencies after the first — the worktree was already created at the
// first dependency's commit, so merge-fi only needs to fold in the rest,
// in dependency order (spec.md §4.2.4).
func remainingDependencyCommits(p *plan.Plan, node *plan.Node) []string {
	if len(node.DependsOn) < 2 {
		return nil
	}
	commits := make([]string, 0, len(node.DependsOn)-1)
	for _, depID := range node.DependsOn[1:] {
		if dep, ok := p.Nodes[depID]; ok && dep.State != nil {
			commits = append(commits, dep.State.CompletedCommit)
		}
	}
	return commits
}

// phaseWorkSpec returns the WorkSpec relevant to phase ph; work/commit/
// merge phases don't each have their own spec slot, so only precheck/
// postcheck/work resolve to one.
func phaseWorkSpec(node *plan.Node, ph plan.PhaseName) *plan.WorkSpec {
	switch ph {
	case plan.PhasePrechecks:
		return node.Prechecks
	case plan.PhaseWork:
		return node.Work
	case plan.PhasePostchecks:
		return node.Postchecks
	default:
		return nil
	}
}

// Cancel marks the node's active execution aborted and kills its tracked
// process, if any. No-op if no execution is recorded (spec.md §4.4).
func (e *Executor) Cancel(planID, nodeID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.byKey[mapKey(planID, nodeID)]
	if !ok {
		return
	}
	ex, ok := e.executions[key]
	if !ok {
		return
	}
	ex.aborted = true
	if ex.process != nil && ex.process.Process != nil {
		killProcessTree(ex.process)
	}
}

func mapKey(planID, nodeID uuid.UUID) string {
	return planID.String() + ":" + nodeID.String()
}

func (e *Executor) register(planID, nodeID uuid.UUID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := fmt.Sprintf("%s:%s:%d", planID, nodeID, time.Now().UnixNano())
	e.byKey[mapKey(planID, nodeID)] = key
	ex := &execution{}
	if e.LogDir != "" {
		if f, err := os.OpenFile(e.LogPathFor(nodeID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			ex.file = f
		}
	}
	e.executions[key] = ex
	return key
}

func (e *Executor) unregister(planID, nodeID uuid.UUID, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ex, ok := e.executions[key]; ok && ex.file != nil {
		ex.file.Close()
	}
	delete(e.executions, key)
	if e.byKey[mapKey(planID, nodeID)] == key {
		delete(e.byKey, mapKey(planID, nodeID))
	}
}

func (e *Executor) isAborted(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[key]
	return ok && ex.aborted
}

func (e *Executor) setProcess(key string, cmd *exec.Cmd) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ex, ok := e.executions[key]; ok {
		ex.process = cmd
	}
}

func (e *Executor) appendLog(key, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[key]
	if !ok {
		return
	}
	ex.logs = append(ex.logs, line)
	if ex.file != nil {
		fmt.Fprintln(ex.file, line)
	}
}

func (e *Executor) recentLog(key string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[key]
	if !ok {
		return nil
	}
	out := make([]string, len(ex.logs))
	copy(out, ex.logs)
	return out
}
