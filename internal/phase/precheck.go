package phase

import "context"

// PrecheckExecutor runs a node's Prechecks WorkSpec. A missing spec is an
// immediate success (spec.md §4.2.1): nodes need not gate on anything.
type PrecheckExecutor struct{}

func (PrecheckExecutor) Execute(ctx context.Context, pc *Context) Result {
	if pc.Work == nil {
		return Result{Success: true}
	}
	return dispatchWork(ctx, pc, pc.Work)
}
