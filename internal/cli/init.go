package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/gitadapter"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Scaffold a starter plan spec in a repository",
	Long: `Scaffold a starter plan spec in the target repository (defaults to
the current directory).

This command:
  - Writes a starter plan-spec.yaml with one example job
  - Adds the orchestrator's working directories to .gitignore`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		if _, err := os.Stat(filepath.Join(absDir, ".git")); err != nil {
			return fmt.Errorf("%s is not a git repository (no .git directory)", absDir)
		}

		specPath := filepath.Join(absDir, "plan-spec.yaml")
		if _, err := os.Stat(specPath); err == nil {
			fmt.Printf("  skip   plan-spec.yaml (already exists)\n")
		} else {
			if err := os.WriteFile(specPath, []byte(starterPlanSpec), 0o644); err != nil {
				return fmt.Errorf("writing plan-spec.yaml: %w", err)
			}
			fmt.Printf("  create plan-spec.yaml\n")
		}

		a := gitadapter.New(absDir)
		if err := a.Gitignore().EnsureGitignoreEntries(cmd.Context(), []string{".orchestrator/"}); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		fmt.Printf("  update .gitignore\n")

		fmt.Println("\nDone.")
		return nil
	},
}

const starterPlanSpec = `name: example-plan
baseBranch: main
targetBranch: main
maxParallel: 2
cleanup: on-success

jobs:
  - producer_id: example/hello-world
    task: Add a short comment explaining what this repository does.
    work: "@agent Add a one-paragraph comment at the top of the README explaining the project."
    postchecks: git diff --quiet --exit-code || true
`
