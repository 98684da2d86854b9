package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/planspec"
)

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <planspec.yaml>",
	Short: "Parse, validate, and enqueue a plan spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := loadAndValidateSpec(args[0])
		if err != nil {
			return err
		}

		p, err := planspec.BuildPlan(f)
		if err != nil {
			return fmt.Errorf("building plan: %w", err)
		}

		abs, err := filepath.Abs(repoPath)
		if err != nil {
			return err
		}
		p.RepoPath = abs

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Scheduler.Enqueue(cmd.Context(), p); err != nil {
			return fmt.Errorf("enqueuing plan: %w", err)
		}
		if err := rt.Store.SavePlan(cmd.Context(), p); err != nil {
			return fmt.Errorf("saving plan: %w", err)
		}

		fmt.Println(p.ID)
		return nil
	},
}
