package phase

import "context"

// PostcheckExecutor runs a node's Postchecks WorkSpec, the same way
// PrecheckExecutor runs Prechecks (spec.md §4.2.1): a missing spec succeeds
// immediately, otherwise the single WorkSpec is dispatched and its result
// returned as-is.
type PostcheckExecutor struct{}

func (PostcheckExecutor) Execute(ctx context.Context, pc *Context) Result {
	if pc.Work == nil {
		return Result{Success: true}
	}
	return dispatchWork(ctx, pc, pc.Work)
}
