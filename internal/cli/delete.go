package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <planId>",
	Short: "Delete a plan's persisted state",
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
		if err := rt.Scheduler.Delete(p); err != nil {
			return err
		}
		if err := rt.Store.DeletePlan(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", p.ID)
		return nil
	},
}
