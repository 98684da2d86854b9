// Package plan holds the Plan/Node/NodeState/WorkSpec data model (spec.md §3):
// a named DAG of jobs, each with mutable per-attempt state, plus the
// snapshot branch metadata the plan accumulates leaf merges into.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// Status is a plan's lifecycle status.
type Status string

const (
	StatusScaffolding Status = "scaffolding"
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusPaused      Status = "paused"
	StatusSucceeded   Status = "succeeded"
	StatusPartial     Status = "partial"
	StatusFailed      Status = "failed"
	StatusCanceled    Status = "canceled"
	// StatusAwaitingFinalMerge is entered when the Final Merge Executor
	// exhausts its bounded retries (spec.md §4.6, §7 FinalMergeExhausted).
	StatusAwaitingFinalMerge Status = "awaiting-final-merge"
)

// CleanupPolicy controls what happens to worktrees/branches after a plan
// reaches a terminal status.
type CleanupPolicy string

const (
	CleanupKeep   CleanupPolicy = "keep"
	CleanupOnDone CleanupPolicy = "on-success"
	CleanupAlways CleanupPolicy = "always"
)

// Spec is the plan's immutable configuration.
type Spec struct {
	Name                string
	MaxParallel         int
	Cleanup             CleanupPolicy
	AdditionalSymlinks  []string
	BranchPrefix        string // used when auto-generating a target branch
}

// Plan is a named DAG of jobs plus its associated branches, worktrees, and
// lifecycle state (spec.md §3, GLOSSARY).
type Plan struct {
	ID           uuid.UUID
	Spec         Spec
	RepoPath     string
	BaseBranch   string
	TargetBranch string
	Snapshot     *Snapshot

	Paused       bool
	Status       Status
	StateVersion uint64

	// GateOnPlanID, when set, keeps this plan paused until the referenced
	// plan reaches a terminal status (the resumeAfterPlan open question,
	// spec.md §9).
	GateOnPlanID *uuid.UUID

	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time

	// Nodes is keyed by Node.ID. Ordering for deterministic dispatch is
	// tracked separately via Order.
	Nodes map[uuid.UUID]*Node
	Order []uuid.UUID
}

// SnapshotBranch returns the canonical snapshot branch name for a plan id
// (spec.md §3, §6 branch-naming contract).
func SnapshotBranch(planID uuid.UUID) string {
	return "orchestrator/snapshot/" + planID.String()
}

// Snapshot accumulates leaf merges before the single final merge into the
// target branch (spec.md §3, §4.3).
type Snapshot struct {
	Branch      string
	WorktreePath string
	BaseCommit  string
}

// NodeKind distinguishes a real-work Job from a namespace-only Group.
type NodeKind string

const (
	KindJob   NodeKind = "job"
	KindGroup NodeKind = "group"
)

// Node is a vertex in the DAG. Groups carry no phases; only their scope is
// used, for producer-id uniqueness (spec.md §3).
type Node struct {
	ID   uuid.UUID
	Kind NodeKind

	// ProducerID is the slash-separated qualified path of lowercase-id
	// segments (3-64 chars each), e.g. "backend/auth/add-refresh-token".
	ProducerID  string
	DisplayName string
	Task        string

	Prechecks  *WorkSpec
	Work       *WorkSpec
	Postchecks *WorkSpec

	DependsOn   []uuid.UUID
	DependentOf []uuid.UUID

	ExpectsNoChanges bool
	BaseBranchOverride string

	// GroupChildren is populated for KindGroup nodes: the ids of nodes
	// (jobs or nested groups) scoped under this group.
	GroupChildren []uuid.UUID

	State *NodeState
}

// NodeStatus is a job node's scheduling/execution status.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeBlocked   NodeStatus = "blocked"
	NodeReady     NodeStatus = "ready"
	NodeScheduled NodeStatus = "scheduled"
	NodeRunning   NodeStatus = "running"
	NodeSucceeded NodeStatus = "succeeded"
	NodeFailed    NodeStatus = "failed"
	NodeCanceled  NodeStatus = "canceled"
)

// PhaseName identifies one of the six phase executors (spec.md §4.2).
type PhaseName string

const (
	PhasePrechecks  PhaseName = "prechecks"
	PhaseWork       PhaseName = "work"
	PhasePostchecks PhaseName = "postchecks"
	PhaseCommit     PhaseName = "commit"
	PhaseMergeFI    PhaseName = "merge-fi"
	PhaseMergeRI    PhaseName = "merge-ri"
)

// orderedPhases is the canonical phase sequence a job's pipeline runs
// through (spec.md §4.4).
var orderedPhases = []PhaseName{
	PhasePrechecks, PhaseWork, PhasePostchecks, PhaseCommit, PhaseMergeFI, PhaseMergeRI,
}

// OrderedPhases returns the canonical phase sequence.
func OrderedPhases() []PhaseName {
	out := make([]PhaseName, len(orderedPhases))
	copy(out, orderedPhases)
	return out
}

// StepStatus is the result of one phase attempt.
type StepStatus string

const (
	StepNotRun   StepStatus = "not-run"
	StepRunning  StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// NodeState is a job node's mutable execution state (spec.md §3).
type NodeState struct {
	Status  NodeStatus
	Steps   map[PhaseName]StepStatus
	Attempt int

	BaseCommit      string
	CompletedCommit string
	MergedToTarget  bool

	StartedAt *time.Time
	EndedAt   *time.Time

	LastError   string
	FailedPhase PhaseName

	SessionID    string
	WorktreePath string
}

// NewNodeState returns a freshly-initialized NodeState for a node that has
// just been added to a plan (status pending, no steps run).
func NewNodeState() *NodeState {
	steps := make(map[PhaseName]StepStatus, len(orderedPhases))
	for _, p := range orderedPhases {
		steps[p] = StepNotRun
	}
	return &NodeState{Status: NodePending, Steps: steps}
}

// WorkSpecKind tags the WorkSpec variant.
type WorkSpecKind string

const (
	WorkShell   WorkSpecKind = "shell"
	WorkProcess WorkSpecKind = "process"
	WorkAgent   WorkSpecKind = "agent"
)

// WorkSpec is a tagged union of Shell, Process, and Agent work (spec.md §3).
// Only the fields for Kind are meaningful.
type WorkSpec struct {
	Kind WorkSpecKind

	// Shell
	Command  string
	ShellKind string // "cmd", "powershell", "pwsh", "bash", "sh", "" = auto

	// Process
	Executable string
	Argv       []string

	// Shell + Process
	Env     map[string]string
	Timeout time.Duration
	Cwd     string

	// Agent
	Instructions   string
	Model          string
	ContextFiles   []string
	MaxTurns       int
	AllowedFolders []string
	AllowedURLs    []string
	SessionID      string
}

// NormalizeWorkSpec converts a raw string into a WorkSpec: a leading
// "@agent " prefix produces an Agent spec; otherwise a Shell spec using the
// platform default shell (spec.md §3).
func NormalizeWorkSpec(raw string) *WorkSpec {
	const agentPrefix = "@agent "
	if len(raw) > len(agentPrefix) && raw[:len(agentPrefix)] == agentPrefix {
		return &WorkSpec{Kind: WorkAgent, Instructions: raw[len(agentPrefix):]}
	}
	return &WorkSpec{Kind: WorkShell, Command: raw}
}
