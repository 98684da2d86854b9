// Package scheduler implements the DAG Scheduler / State Machine (spec.md
// §4.5): enqueue validation, readiness resolution, maxParallel-bounded
// dispatch, pause/resume/cancel/retry, and plan-status derivation.
//
// Grounded on the teacher's internal/engine.topologicalLevels +
// RunOnceWithLogs level-by-level sync.WaitGroup fan-out, replaced with a
// readiness-driven tick loop bounded by golang.org/x/sync/semaphore
// (spec.md §9 REDESIGN FLAGS: "bound concurrency explicitly instead of
// relying on level-by-level barriers").
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/re-cinq/plango/internal/errkind"
	"github.com/re-cinq/plango/internal/finalmerge"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/jobexec"
	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/snapshot"
)

// Hooks lets a host (the CLI or MCP layer) observe state transitions; all
// fields are optional.
type Hooks struct {
	OnNodeStatusChanged func(p *plan.Plan, node *plan.Node)
	OnPlanStatusChanged func(p *plan.Plan)
}

// Scheduler drives one or more plans' tick loops.
type Scheduler struct {
	JobExecutor func(p *plan.Plan) *jobexec.Executor
	NewAdapter  func(worktreePath string) *gitadapter.Adapter
	WorktreeRoot string
	Hooks        Hooks
	Log          *slog.Logger

	mu               sync.Mutex
	sems             map[uuid.UUID]*semaphore.Weighted
	finalMergeQueued map[uuid.UUID]bool
}

// New constructs a Scheduler.
func New(jobExecutorFor func(p *plan.Plan) *jobexec.Executor, newAdapter func(string) *gitadapter.Adapter, worktreeRoot string, hooks Hooks) *Scheduler {
	return &Scheduler{
		JobExecutor:      jobExecutorFor,
		NewAdapter:       newAdapter,
		WorktreeRoot:     worktreeRoot,
		Hooks:            hooks,
		Log:              slog.Default(),
		sems:             make(map[uuid.UUID]*semaphore.Weighted),
		finalMergeQueued: make(map[uuid.UUID]bool),
	}
}

// Enqueue validates spec and nodes, builds the DAG, creates the snapshot
// branch/worktree if p has a target branch, and marks roots ready
// (spec.md §4.5 Enqueue).
func (s *Scheduler) Enqueue(ctx context.Context, p *plan.Plan) error {
	if p.Spec.Name == "" {
		return errkind.New(errkind.ValidationFailed, "plan name must be non-empty")
	}
	if len(p.Nodes) == 0 {
		return errkind.New(errkind.ValidationFailed, "plan must have at least one job")
	}
	if err := p.ValidateDAG(); err != nil {
		return errkind.Wrap(errkind.ValidationFailed, err)
	}

	a := s.NewAdapter(p.RepoPath)
	if p.TargetBranch == "" {
		if a.Branches().IsDefaultBranch(ctx, p.BaseBranch) {
			p.TargetBranch = p.Spec.BranchPrefix + "/" + p.ID.String()
			if err := a.Branches().Create(ctx, p.TargetBranch, p.BaseBranch); err != nil {
				return errkind.Wrap(errkind.Unknown, err)
			}
		} else {
			p.TargetBranch = p.BaseBranch
		}
	}

	snap, err := snapshot.Create(ctx, a, p.ID, p.TargetBranch, s.WorktreeRoot)
	if err != nil {
		return errkind.Wrap(errkind.Unknown, err)
	}
	p.Snapshot = snap

	for _, id := range p.Order {
		node := p.Nodes[id]
		if node.Kind != plan.KindJob {
			continue
		}
		if len(node.DependsOn) == 0 {
			node.State.Status = plan.NodeReady
		} else {
			node.State.Status = plan.NodePending
		}
	}

	p.Status = plan.StatusRunning
	p.StateVersion++
	s.log().Info("plan enqueued", slog.String("plan_id", p.ID.String()), slog.Int("jobs", len(p.Order)))
	return nil
}

// log returns s.Log, falling back to slog.Default() the way the pack's
// executor backends do when constructed without one (e.g. direct struct
// literals in tests).
func (s *Scheduler) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Scheduler) semaphoreFor(p *plan.Plan) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.sems[p.ID]
	if !ok {
		max := p.Spec.MaxParallel
		if max <= 0 {
			max = 1
		}
		sem = semaphore.NewWeighted(int64(max))
		s.sems[p.ID] = sem
	}
	return sem
}

// Tick runs one scheduling pass for p: while running and under maxParallel,
// dispatch ready nodes; on each completion, re-evaluate dependents
// (spec.md §4.5 Tick). Nodes dispatched this round run concurrently
// (bounded by maxParallel), but Tick itself blocks until every one of them
// finishes before returning — callers are short-lived CLI processes with no
// independent persistence path for an in-flight node, so a non-blocking
// Tick would strand completions no one ever saves. Callers loop Tick (each
// call reloading the plan from the store first, so an out-of-process
// pause/resume/cancel is picked up between rounds) until the plan reaches a
// terminal state.
func (s *Scheduler) Tick(ctx context.Context, p *plan.Plan) {
	if p.Paused || isTerminal(p.Status) {
		return
	}

	sem := s.semaphoreFor(p)
	exec := s.JobExecutor(p)

	var wg sync.WaitGroup
	for {
		node := s.pickReady(p)
		if node == nil {
			break
		}
		if !sem.TryAcquire(1) {
			break
		}

		node.State.Status = plan.NodeScheduled
		s.notifyNode(p, node)

		wg.Add(1)
		go func(node *plan.Node) {
			defer wg.Done()
			defer sem.Release(1)
			s.runNode(ctx, p, node, exec)
			s.recomputePlanStatus(p)
			s.notifyPlan(p)
			s.maybeRunFinalMerge(ctx, p)
		}(node)
	}
	wg.Wait()
}

// maybeRunFinalMerge triggers the Final Merge Executor the first time a
// plan's nodes all succeed (spec.md §4.6 "triggered when all leaf nodes
// have succeeded through merge-ri into the snapshot"). Guarded by
// finalMergeQueued so concurrently-finishing sibling nodes can't both
// trigger it.
func (s *Scheduler) maybeRunFinalMerge(ctx context.Context, p *plan.Plan) {
	if p.Status != plan.StatusSucceeded || p.Snapshot == nil {
		return
	}

	s.mu.Lock()
	if s.finalMergeQueued[p.ID] {
		s.mu.Unlock()
		return
	}
	s.finalMergeQueued[p.ID] = true
	s.mu.Unlock()

	s.runFinalMerge(ctx, p)
}

// runFinalMerge invokes the Final Merge Executor against p's snapshot,
// logging and notifying on both outcomes. On exhaustion, finalmerge.Run
// itself leaves p in StatusAwaitingFinalMerge for RetryFinalMerge.
func (s *Scheduler) runFinalMerge(ctx context.Context, p *plan.Plan) {
	a := s.NewAdapter(p.RepoPath)
	if err := finalmerge.Run(ctx, p, finalmerge.Options{Adapter: a}); err != nil {
		s.log().Error("final merge failed", slog.String("plan_id", p.ID.String()), slog.Any("error", err))
	} else {
		s.log().Info("final merge succeeded", slog.String("plan_id", p.ID.String()))
	}
	p.StateVersion++
	s.notifyPlan(p)
}

// RetryFinalMerge re-runs the Final Merge Executor for a plan left in
// StatusAwaitingFinalMerge after MaxAttempts was exhausted (spec.md §4.6
// "user may retrigger explicitly").
func (s *Scheduler) RetryFinalMerge(ctx context.Context, p *plan.Plan) error {
	if p.Status != plan.StatusAwaitingFinalMerge {
		return errkind.New(errkind.ValidationFailed, "plan is not awaiting a final merge")
	}
	s.runFinalMerge(ctx, p)
	if p.Status == plan.StatusAwaitingFinalMerge {
		return errkind.New(errkind.FinalMergeExhausted, "final merge retry did not succeed")
	}
	return nil
}

// pickReady returns the stable-ordered (by plan insertion) next ready node,
// or nil.
func (s *Scheduler) pickReady(p *plan.Plan) *plan.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range p.Order {
		node := p.Nodes[id]
		if node.Kind == plan.KindJob && node.State.Status == plan.NodeReady {
			return node
		}
	}
	return nil
}

func (s *Scheduler) runNode(ctx context.Context, p *plan.Plan, node *plan.Node, exec *jobexec.Executor) {
	node.State.Status = plan.NodeRunning
	node.State.Attempt++
	s.notifyNode(p, node)
	log := s.log().With(slog.String("plan_id", p.ID.String()), slog.String("node_id", node.ID.String()), slog.String("producer_id", node.ProducerID))
	log.Info("node attempt started", slog.Int("attempt", node.State.Attempt))

	outcome := exec.RunNode(ctx, p, node, s.WorktreeRoot, "")

	if outcome.Success {
		node.State.Status = plan.NodeSucceeded
		node.State.MergedToTarget = true
		log.Info("node attempt succeeded", slog.String("commit", outcome.Commit))
	} else {
		node.State.Status = plan.NodeFailed
		log.Error("node attempt failed", slog.String("phase", string(outcome.FailedPhase)), slog.Any("error", outcome.Error))
	}
	s.notifyNode(p, node)

	s.reevaluateDependents(p, node)
}

// reevaluateDependents marks every dependent of node ready (all deps
// succeeded), blocked (any dep failed/canceled), or leaves it pending
// (spec.md §4.5 Tick).
func (s *Scheduler) reevaluateDependents(p *plan.Plan, node *plan.Node) {
	for _, depID := range node.DependentOf {
		dependent, ok := p.Nodes[depID]
		if !ok || dependent.State.Status != plan.NodePending && dependent.State.Status != plan.NodeBlocked {
			continue
		}
		allSucceeded := true
		anyFailed := false
		for _, dep := range p.Dependencies(dependent) {
			switch dep.State.Status {
			case plan.NodeSucceeded:
			case plan.NodeFailed, plan.NodeCanceled:
				anyFailed = true
				allSucceeded = false
			default:
				allSucceeded = false
			}
		}
		switch {
		case allSucceeded:
			dependent.State.Status = plan.NodeReady
		case anyFailed:
			dependent.State.Status = plan.NodeBlocked
		}
		s.notifyNode(p, dependent)
	}
}

// recomputePlanStatus derives p.Status from node counts (spec.md §4.5 Plan
// status).
func (s *Scheduler) recomputePlanStatus(p *plan.Plan) {
	if p.Paused {
		p.Status = plan.StatusPaused
		return
	}

	var running, scheduled, succeeded, failed, blocked, canceled, total int
	for _, id := range p.Order {
		node := p.Nodes[id]
		if node.Kind != plan.KindJob {
			continue
		}
		total++
		switch node.State.Status {
		case plan.NodeRunning:
			running++
		case plan.NodeScheduled:
			scheduled++
		case plan.NodeSucceeded:
			succeeded++
		case plan.NodeFailed:
			failed++
		case plan.NodeBlocked:
			blocked++
		case plan.NodeCanceled:
			canceled++
		}
	}

	switch {
	case running > 0 || scheduled > 0:
		p.Status = plan.StatusRunning
	case succeeded == total:
		p.Status = plan.StatusSucceeded
	case failed > 0 && succeeded > 0:
		p.Status = plan.StatusPartial
	case failed > 0, blocked > 0:
		p.Status = plan.StatusFailed
	case canceled > 0:
		p.Status = plan.StatusCanceled
	}
	p.StateVersion++
}

func isTerminal(status plan.Status) bool {
	switch status {
	case plan.StatusSucceeded, plan.StatusFailed, plan.StatusCanceled, plan.StatusPartial:
		return true
	default:
		return false
	}
}

// Pause flips p's pause flag; running jobs finish, new dispatches stop
// (spec.md §4.5 Pause).
func (s *Scheduler) Pause(p *plan.Plan) {
	p.Paused = true
	p.Status = plan.StatusPaused
	p.StateVersion++
	s.log().Info("plan paused", slog.String("plan_id", p.ID.String()))
}

// Resume clears p's pause flag so the next Tick resumes dispatch
// (spec.md §4.5 Resume). Blocked while the plan is still StatusScaffolding.
func (s *Scheduler) Resume(p *plan.Plan) error {
	if p.Status == plan.StatusScaffolding {
		return errkind.New(errkind.ValidationFailed, "cannot resume a plan that is still scaffolding")
	}
	p.Paused = false
	s.recomputePlanStatus(p)
	s.log().Info("plan resumed", slog.String("plan_id", p.ID.String()))
	return nil
}

// Cancel marks every non-terminal node canceled and cancels the Job
// Executor's active entries for each (spec.md §4.5 Cancel).
func (s *Scheduler) Cancel(p *plan.Plan) {
	exec := s.JobExecutor(p)
	for _, id := range p.Order {
		node := p.Nodes[id]
		if node.Kind != plan.KindJob {
			continue
		}
		if isTerminalNode(node.State.Status) {
			continue
		}
		node.State.Status = plan.NodeCanceled
		exec.Cancel(p.ID, node.ID)
		s.notifyNode(p, node)
	}
	p.Status = plan.StatusCanceled
	p.StateVersion++
	s.log().Info("plan canceled", slog.String("plan_id", p.ID.String()))
}

func isTerminalNode(status plan.NodeStatus) bool {
	switch status {
	case plan.NodeSucceeded, plan.NodeFailed, plan.NodeCanceled:
		return true
	default:
		return false
	}
}

// RetryOptions parameterizes RetryNode.
type RetryOptions struct {
	NewWork       *plan.WorkSpec
	NewPrechecks  *plan.WorkSpec
	NewPostchecks *plan.WorkSpec
	ClearWorktree bool
}

// RetryNode resets a failed node to ready, optionally patching its specs
// and clearing its worktree, and unblocks any now-unblocked dependents
// (spec.md §4.5 Retry).
func (s *Scheduler) RetryNode(ctx context.Context, p *plan.Plan, nodeID uuid.UUID, opts RetryOptions) error {
	node, ok := p.Nodes[nodeID]
	if !ok {
		return errkind.New(errkind.NotFound, "node not found")
	}
	if node.State.Status != plan.NodeFailed {
		return errkind.New(errkind.ValidationFailed, "node must be failed to retry")
	}

	if opts.NewWork != nil {
		node.Work = opts.NewWork
	}
	if opts.NewPrechecks != nil {
		node.Prechecks = opts.NewPrechecks
	}
	if opts.NewPostchecks != nil {
		node.Postchecks = opts.NewPostchecks
	}
	if opts.ClearWorktree && node.State.WorktreePath != "" {
		a := s.NewAdapter(p.RepoPath)
		_ = a.Worktrees().RemoveSafe(ctx, node.State.WorktreePath)
		node.State.WorktreePath = ""
	}

	node.State.Status = plan.NodeReady
	node.State.LastError = ""
	node.State.StartedAt = nil
	node.State.EndedAt = nil
	s.notifyNode(p, node)

	for _, id := range p.Order {
		n := p.Nodes[id]
		if n.Kind != plan.KindJob || n.State.Status != plan.NodeBlocked {
			continue
		}
		anyFailed := false
		for _, dep := range p.Dependencies(n) {
			if dep.State.Status == plan.NodeFailed {
				anyFailed = true
			}
		}
		if !anyFailed {
			n.State.Status = plan.NodePending
			s.notifyNode(p, n)
		}
	}

	if isTerminal(p.Status) {
		p.Status = plan.StatusRunning
	}
	p.StateVersion++
	s.log().Info("node retried", slog.String("plan_id", p.ID.String()), slog.String("node_id", node.ID.String()))
	return nil
}

// RetryPlan retries every failed node with default options (spec.md §4.5
// Retry cascade).
func (s *Scheduler) RetryPlan(ctx context.Context, p *plan.Plan) error {
	var failed []uuid.UUID
	for _, id := range p.Order {
		if n := p.Nodes[id]; n.Kind == plan.KindJob && n.State.Status == plan.NodeFailed {
			failed = append(failed, id)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].String() < failed[j].String() })
	for _, id := range failed {
		if err := s.RetryNode(ctx, p, id, RetryOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// Delete requires p to be in a terminal status; callers remove state after
// this returns nil (spec.md §4.5 Delete).
func (s *Scheduler) Delete(p *plan.Plan) error {
	if !isTerminal(p.Status) && p.Status != plan.StatusAwaitingFinalMerge {
		return errkind.New(errkind.ValidationFailed, "plan must be terminal to delete")
	}
	return nil
}

func (s *Scheduler) notifyNode(p *plan.Plan, node *plan.Node) {
	if s.Hooks.OnNodeStatusChanged != nil {
		s.Hooks.OnNodeStatusChanged(p, node)
	}
}

func (s *Scheduler) notifyPlan(p *plan.Plan) {
	if s.Hooks.OnPlanStatusChanged != nil {
		s.Hooks.OnPlanStatusChanged(p)
	}
}
