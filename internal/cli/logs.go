package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsTail   int
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

// logsCmd tails a node's persisted log file, generalizing the teacher's
// logs.go (which shells out to `tail` against one LogManager-owned file
// per concern) to a job node resolved by UUID or producer id within a
// plan.
var logsCmd = &cobra.Command{
	Use:   "logs <planId> <jobId>",
	Short: "Show persisted logs for a job node",
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

		logPath := rt.NodeLogPath(node.ID)
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			return fmt.Errorf("no log file found for %q (expected at %s)", node.ProducerID, logPath)
		}

		tailArgs := []string{"-n", fmt.Sprintf("%d", logsTail)}
		if logsFollow {
			tailArgs = append(tailArgs, "-f")
		}
		tailArgs = append(tailArgs, logPath)

		tailCmd := exec.Command("tail", tailArgs...)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	},
}
