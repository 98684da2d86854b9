package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cancelCmd)
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <planId>",
	Short: "Cancel every non-terminal job node in a plan",
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

		rt.Scheduler.Cancel(p)
		if err := rt.Store.SavePlan(ctx, p); err != nil {
			return err
		}
		fmt.Printf("canceled %s\n", p.ID)
		return nil
	},
}
