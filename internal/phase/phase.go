// Package phase implements the six phase executors (spec.md §4.2):
// prechecks, work, postchecks, commit, merge-fi, merge-ri. Every executor
// implements the same Executor contract; Dispatch picks the right one by
// plan.PhaseName, replacing a polymorphic-call pattern with one tagged
// dispatch function (spec.md §9 REDESIGN FLAGS).
package phase

import (
	"context"
	"os/exec"

	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/plan"
)

// Context carries everything one phase execution needs (spec.md §4.2).
type Context struct {
	Plan *plan.Plan
	Node *plan.Node

	WorktreePath string
	ExecutionKey string
	Phase        plan.PhaseName
	Work         *plan.WorkSpec
	BaseCommit   string
	PriorSession string

	Adapter  *gitadapter.Adapter
	Delegate agent.Delegator

	LogInfo    func(msg string, args ...any)
	LogError   func(msg string, args ...any)
	LogOutput  func(kind, text string)
	IsAborted  func() bool
	SetProcess func(cmd *exec.Cmd)
	SetStart   func()
	SetAgent   func(bool)

	// RecentLog returns the execution log accumulated so far this
	// attempt, most recent last, for the commit phase's AI no-change
	// review (spec.md §4.2.3).
	RecentLog func() []string

	// MergePreference is the configured "prefer ours/theirs" conflict
	// policy for the merge helper (spec.md §4.2.4), default "theirs".
	MergePreference string

	// PushOnSuccess mirrors merge.pushOnSuccess (spec.md §4.2.5).
	PushOnSuccess bool

	// remainingDependencyCommits holds the completed commits of every
	// dependency after the first, in dependency order, for merge-fi
	// (spec.md §4.2.4). Set by the job executor before dispatch.
	remainingDependencyCommits []string
}

// SetRemainingDependencyCommits records the dependency commits merge-fi
// must fold in, beyond the one the worktree was already created at.
func (pc *Context) SetRemainingDependencyCommits(commits []string) {
	pc.remainingDependencyCommits = commits
}

// Result is what every phase executor returns (spec.md §4.2).
type Result struct {
	Success    bool
	Error      error
	ExitCode   int
	Commit     string
	SessionID  string
	Metrics    *agent.Metrics
	ReviewMetrics *ReviewMetrics

	// OverrideResumeFromPhase lets a failed phase tell the scheduler to
	// re-enter the pipeline from an earlier phase on auto-heal, instead of
	// leaving the node simply failed.
	OverrideResumeFromPhase plan.PhaseName
	NoAutoHeal              bool
}

// ReviewMetrics records the AI no-change-review outcome (spec.md §4.2.3).
type ReviewMetrics struct {
	Legitimate bool
	Reason     string
}

// Executor is the single contract all six phase implementations satisfy.
type Executor interface {
	Execute(ctx context.Context, pc *Context) Result
}

// Dispatch runs the executor for pc.Phase.
func Dispatch(ctx context.Context, pc *Context) Result {
	var exec Executor
	switch pc.Phase {
	case plan.PhasePrechecks:
		exec = PrecheckExecutor{}
	case plan.PhaseWork:
		exec = WorkExecutor{}
	case plan.PhasePostchecks:
		exec = PostcheckExecutor{}
	case plan.PhaseCommit:
		exec = CommitExecutor{}
	case plan.PhaseMergeFI:
		exec = MergeFIExecutor{}
	case plan.PhaseMergeRI:
		exec = MergeRIExecutor{}
	default:
		return Result{Error: unknownPhaseErr(pc.Phase)}
	}
	return exec.Execute(ctx, pc)
}

func unknownPhaseErr(p plan.PhaseName) error {
	return &unknownPhaseError{p}
}

type unknownPhaseError struct{ phase plan.PhaseName }

func (e *unknownPhaseError) Error() string { return "phase: unknown phase " + string(e.phase) }
