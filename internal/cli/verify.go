package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/agent"
	"github.com/re-cinq/plango/internal/gitadapter"
	"github.com/re-cinq/plango/internal/phase"
	"github.com/re-cinq/plango/internal/plan"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// verifyCmd re-runs a node's postcheck WorkSpec ad hoc against its
// existing worktree, generalizing the teacher's gate.go (which re-runs a
// fixed list of quality gates against the repo's staged files) to a
// single job node's own postcheck spec, without touching the node's
// persisted state.
var verifyCmd = &cobra.Command{
	Use:   "verify <planId> <jobId>",
	Short: "Re-run a job node's postchecks against its worktree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		planID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid plan id %q: %w", args[0], err)
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		p, err := rt.Store.GetPlan(cmd.Context(), planID)
		if err != nil {
			return err
		}
		node, err := resolveNodeRef(p, args[1])
		if err != nil {
			return err
		}
		if node.State.WorktreePath == "" {
			return fmt.Errorf("job %q has no worktree yet (run the plan first)", node.ProducerID)
		}
		if node.Postchecks == nil {
			fmt.Println("No postchecks configured for this job.")
			return nil
		}

		pc := &phase.Context{
			Plan:         p,
			Node:         node,
			WorktreePath: node.State.WorktreePath,
			Phase:        plan.PhasePostchecks,
			Work:         node.Postchecks,
			BaseCommit:   node.State.BaseCommit,
			Adapter:      gitadapter.New(node.State.WorktreePath),
			Delegate:     agentDelegateFromFlag(),
			LogOutput: func(kind, text string) {
				fmt.Println(text)
			},
			IsAborted: func() bool { return false },
		}

		result := phase.Dispatch(cmd.Context(), pc)
		if !result.Success {
			if result.Error != nil {
				fmt.Fprintf(os.Stderr, "verify failed: %s\n", result.Error)
			}
			return fmt.Errorf("postchecks failed (exit code %d)", result.ExitCode)
		}

		fmt.Println("Postchecks passed.")
		return nil
	},
}

// agentDelegateFromFlag mirrors newRuntime's delegate construction for
// commands, like verify, that build a phase.Context without going through
// the Job Executor.
func agentDelegateFromFlag() agent.Delegator {
	if agentCommand == "" {
		return nil
	}
	return &agent.ExecDelegator{Command: agentCommand}
}
