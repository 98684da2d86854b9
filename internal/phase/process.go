package phase

import (
	"context"
	"os/exec"

	"github.com/re-cinq/plango/internal/plan"
)

// runProcess executes a Process WorkSpec directly via exec, bypassing a
// shell entirely (spec.md §3 WorkSpec, §4.2.2).
func runProcess(ctx context.Context, pc *Context, spec *plan.WorkSpec) Result {
	if pc.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.Timeout())
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Executable, spec.Argv...)
	cmd.Dir = resolveCwd(pc, spec)
	cmd.Env = mergeEnv(spec.Env)

	return runAndWait(ctx, pc, cmd)
}
