// Package reset implements the reset command, returning targets to
// pending for another extraction pass.
package reset

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/store"
)

// Command returns the reset command for use in the root command.
func Command() *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return targets to pending for another extraction pass",
		Long: `Reset with --failed-only moves failed targets back to pending, with
attempt counts preserved, so the next extract run picks them up again.
Without the flag the entire ledger is cleared and the next build starts
from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps((*config.Config).ValidatePipeline)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			targets, err := store.Open(deps.Config.GetPipelineConfig().LedgerPath, deps.Logger)
			if err != nil {
				return fmt.Errorf("open target ledger: %w", err)
			}
			defer func() {
				if closeErr := targets.Close(); closeErr != nil {
					deps.Logger.Error("Failed to close target ledger", "error", closeErr)
				}
			}()

			n, err := targets.Reset(failedOnly)
			if err != nil {
				return fmt.Errorf("reset targets: %w", err)
			}

			deps.Logger.Info("Reset complete", "reset", n, "failed_only", failedOnly)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "Reset only failed targets")

	return cmd
}
