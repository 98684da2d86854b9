package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(retryCmd)
}

// retryCmd resets a node (or every failed node) back to ready, mapping
// from the teacher's trigger.go (which only ever restarts the whole
// runner) to per-node and whole-plan retry (spec.md §4.5 Retry).
var retryCmd = &cobra.Command{
	Use:   "retry <planId> [jobId]",
	Short: "Retry a failed job node, or every failed node in the plan",
	Args:  cobra.RangeArgs(1, 2),
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

		ctx := cmd.Context()
		p, err := rt.Store.GetPlan(ctx, planID)
		if err != nil {
			return err
		}

		switch {
		case len(args) == 2:
			node, err := resolveNodeRef(p, args[1])
			if err != nil {
				return err
			}
			if err := rt.Scheduler.RetryNode(ctx, p, node.ID, scheduler.RetryOptions{}); err != nil {
				return err
			}
			fmt.Printf("retried %s\n", node.ProducerID)
		case p.Status == plan.StatusAwaitingFinalMerge:
			if err := rt.Scheduler.RetryFinalMerge(ctx, p); err != nil {
				return err
			}
			fmt.Println("final merge succeeded")
		default:
			if err := rt.Scheduler.RetryPlan(ctx, p); err != nil {
				return err
			}
			fmt.Println("retried all failed jobs")
		}

		return rt.Store.SavePlan(ctx, p)
	},
}
