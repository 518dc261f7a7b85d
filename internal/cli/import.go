package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/config"
	"github.com/lazypower/affinity/internal/dynamics"
)

var importForce bool

var importCmd = &cobra.Command{
	Use:   "import <user-id> <session-id> <state.json>",
	Short: "Import a saved state file",
	Long: "Reads a state file, including older files with missing fields or zone-less timestamps, " +
		"normalizes it and stores it for the relationship.",
	Args: cobra.ExactArgs(3),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Overwrite existing state")
}

func runImport(cmd *cobra.Command, args []string) error {
	userID, sessionID, path := args[0], args[1], args[2]

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	s, err := dynamics.ParseSnapshot(raw, time.Now().UTC())
	if err != nil {
		return err
	}
	data, err := dynamics.MarshalSnapshot(s)
	if err != nil {
		return err
	}

	be, _, err := openBackend(config.FromEnv())
	if err != nil {
		return err
	}
	defer be.Close()

	ctx := cmd.Context()
	if !importForce {
		existing, err := be.LoadSnapshot(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%s/%s already has stored state (use --force to overwrite)", userID, sessionID)
		}
	}
	if err := be.SaveSnapshot(ctx, userID, sessionID, data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s/%s [%s, %d interactions]\n",
		userID, sessionID, s.Archetype, s.TotalInteractions)
	return nil
}
