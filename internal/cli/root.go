package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "plango",
	Short: "Orchestrate coding agents through a job DAG",
	Long: `plango drives a DAG of jobs through per-job worktrees, a fixed
six-phase pipeline (prechecks, work, postchecks, commit, merge-fi,
merge-ri), and a final merge into the plan's target branch.

Each job runs in its own git worktree, branching off its dependencies'
completed commits. Git itself provides the audit trail between jobs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", ".", "Path to the git repository")
	rootCmd.PersistentFlags().StringVar(&worktreeRoot, "worktree-root", "", "Root directory for per-job worktrees (default <repo>/.orchestrator/worktrees)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the plan store database (default <repo>/.orchestrator/plango.db)")
	rootCmd.PersistentFlags().StringVar(&agentCommand, "agent-command", "", "Command to invoke for @agent work (empty disables agent work)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("plango %s\n", Version)
	},
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM,
// generalizing the teacher's run.go daemon loop's signal handling to every
// command, since watch/status --follow poll indefinitely the same way the
// daemon polled.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
