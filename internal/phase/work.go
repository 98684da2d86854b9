package phase

import "context"

// WorkExecutor runs a node's primary Work WorkSpec (spec.md §4.2.2). Unlike
// prechecks/postchecks, a nil Work spec is a configuration error rather than
// a pass-through: every job node must do something.
type WorkExecutor struct{}

func (WorkExecutor) Execute(ctx context.Context, pc *Context) Result {
	if pc.Work == nil {
		return Result{Error: errNoWorkSpec}
	}
	return dispatchWork(ctx, pc, pc.Work)
}

type noWorkSpecError struct{}

func (noWorkSpecError) Error() string { return "phase: node has no work spec" }

var errNoWorkSpec error = noWorkSpecError{}
