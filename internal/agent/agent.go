// Package agent defines the AgentDelegator collaborator (spec.md §1,
// "the AI agent invocation subprocess itself"): the interface the phase
// executors and merge helpers use to invoke an AI coding agent, plus one
// concrete PTY-backed implementation suitable for local use and tests.
package agent

import (
	"context"
)

// Request describes one agent invocation.
type Request struct {
	WorktreeDir string
	JobID       string // the node id, passed through as the agent's job id
	SessionID   string // non-empty to resume a prior session

	Instructions   string
	Model          string
	ContextFiles   []string
	MaxTurns       int
	AllowedFolders []string
	AllowedURLs    []string

	ConfigDir string

	// Stdin, when set, is piped to the agent's stdin (used for the fixed
	// conflict-resolution and no-change-review prompts).
	Stdin string

	// Output receives the agent's combined stdout/stderr, line-buffered
	// where the transport supports it.
	Output func(line string)
}

// TokenUsage reports per-call token accounting, when the backend exposes
// it.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Metrics accumulates work-phase agent telemetry (spec.md §4.2.2).
type Metrics struct {
	Turns      int
	ToolCalls  int
	TokenUsage TokenUsage
}

// Result is what a Delegator call returns.
type Result struct {
	Success   bool
	SessionID string
	ExitCode  int
	Metrics   Metrics
	Error     error
}

// Delegator invokes an AI coding agent against a worktree and returns its
// outcome. Implementations may be resumable (SessionID round-trips) or not.
type Delegator interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}
