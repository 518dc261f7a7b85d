package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/config"
)

var resetCmd = &cobra.Command{
	Use:   "reset <user-id> <session-id>",
	Short: "Delete a relationship's stored state and update log",
	Long:  "Deletes stored state only. A running server keeps its in-memory copy; use DELETE /api/relationships/{user}/{session} there instead.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		be, _, err := openBackend(config.FromEnv())
		if err != nil {
			return err
		}
		defer be.Close()

		if err := be.DeleteSnapshot(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s/%s\n", args[0], args[1])
		return nil
	},
}
