package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <planspec.yaml>",
	Short: "Validate a plan spec without enqueuing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadAndValidateSpec(args[0]); err != nil {
			return err
		}

		fmt.Println("Plan spec is valid.")
		return nil
	},
}
