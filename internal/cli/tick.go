package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/plan"
)

func init() {
	watchCmd.Flags().IntVarP(&watchInterval, "interval", "n", 2, "Seconds between ticks")
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(watchCmd)
}

func isTerminalPlanStatus(status plan.Status) bool {
	switch status {
	case plan.StatusSucceeded, plan.StatusFailed, plan.StatusCanceled, plan.StatusPartial, plan.StatusAwaitingFinalMerge:
		return true
	default:
		return false
	}
}

func tickerC(seconds int) <-chan time.Time {
	if seconds <= 0 {
		seconds = 2
	}
	return time.After(time.Duration(seconds) * time.Second)
}

var tickCmd = &cobra.Command{
	Use:   "tick <planId>",
	Short: "Run one scheduling pass: dispatch ready nodes and wait for in-flight work to settle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid plan id %q: %w", args[0], err)
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		p, err := rt.Store.GetPlan(ctx, id)
		if err != nil {
			return err
		}

		rt.Scheduler.Tick(ctx, p)

		if err := rt.Store.SavePlan(ctx, p); err != nil {
			return fmt.Errorf("saving plan: %w", err)
		}
		fmt.Printf("plan %s: %s\n", p.ID, p.Status)
		return nil
	},
}

var watchInterval int

var watchCmd = &cobra.Command{
	Use:   "watch <planId>",
	Short: "Tick a plan repeatedly until it reaches a terminal status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid plan id %q: %w", args[0], err)
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		for {
			p, err := rt.Store.GetPlan(ctx, id)
			if err != nil {
				return err
			}

			rt.Scheduler.Tick(ctx, p)
			if err := rt.Store.SavePlan(ctx, p); err != nil {
				return fmt.Errorf("saving plan: %w", err)
			}

			symbol, color := planStatusDisplay(p.Status)
			fmt.Printf("%s%s%s plan %s: %s\n", color, symbol, ansiReset, p.ID, p.Status)

			if isTerminalPlanStatus(p.Status) {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tickerC(watchInterval):
			}
		}
	},
}
