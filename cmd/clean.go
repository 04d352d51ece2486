package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newCleanCmd creates the 'clean' subcommand: offline dataset
// maintenance that moves empty or malformed records into the exclusion
// ledger.
func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove empty records from the checkpointed dataset",
		RunE:  runCleanCommand,
	}
}

func runCleanCommand(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	removed, err := a.store.Clean()
	if err != nil {
		return fmt.Errorf("clean dataset: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
	return nil
}
