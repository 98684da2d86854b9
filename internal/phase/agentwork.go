package phase

import (
	"context"

	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/plan"
)

// dispatchWork runs a WorkSpec of any kind and returns the phase Result.
// Shared by prechecks, work, and postchecks (spec.md §4.2.1, §4.2.2): all
// three phases execute the same three WorkSpec variants, differing only in
// what the caller does with the outcome afterward.
func dispatchWork(ctx context.Context, pc *Context, spec *plan.WorkSpec) Result {
	if spec == nil {
		return Result{Success: true}
	}
	switch spec.Kind {
	case plan.WorkShell:
		return runShell(ctx, pc, spec)
	case plan.WorkProcess:
		return runProcess(ctx, pc, spec)
	case plan.WorkAgent:
		return runAgentWork(ctx, pc, spec)
	default:
		return Result{Error: errUnknownWorkKind(spec.Kind)}
	}
}

type unknownWorkKindError struct{ kind plan.WorkSpecKind }

func (e *unknownWorkKindError) Error() string { return "phase: unknown work kind " + string(e.kind) }

func errUnknownWorkKind(k plan.WorkSpecKind) error { return &unknownWorkKindError{k} }

// runAgentWork invokes the configured agent delegate, capturing its session
// id (for resumption across retries) and metrics (spec.md §4.2.2).
func runAgentWork(ctx context.Context, pc *Context, spec *plan.WorkSpec) Result {
	if pc.SetAgent != nil {
		pc.SetAgent(true)
		defer pc.SetAgent(false)
	}

	sessionID := spec.SessionID
	if sessionID == "" {
		sessionID = pc.PriorSession
	}

	req := agent.Request{
		WorktreeDir:    pc.WorktreePath,
		JobID:          pc.Node.ID.String(),
		SessionID:      sessionID,
		Instructions:   spec.Instructions,
		Model:          spec.Model,
		ContextFiles:   spec.ContextFiles,
		MaxTurns:       spec.MaxTurns,
		AllowedFolders: spec.AllowedFolders,
		AllowedURLs:    spec.AllowedURLs,
		Output: func(line string) {
			if pc.LogOutput != nil {
				pc.LogOutput("agent", line)
			}
		},
	}

	res, err := pc.Delegate.Invoke(ctx, req)
	if err != nil {
		return Result{Error: err}
	}

	m := res.Metrics
	return Result{
		Success:   res.Success,
		ExitCode:  res.ExitCode,
		SessionID: res.SessionID,
		Metrics:   &m,
	}
}
