// Package extract implements the extract command, the enrichment phase
// of a collection run.
package extract

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/pipeline"
	"github.com/jonesrussell/gointel/internal/sink"
	"github.com/jonesrussell/gointel/internal/store"
)

// Command returns the extract command for use in the root command.
func Command() *cobra.Command {
	var maxTargets int

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Process pending targets into structured records",
		Long: `Extract leases pending targets from the ledger and drives each one
through homepage resolution, page fetching and model structuring.
Successful extractions land in the results sink; failures are recorded
on the target. A run of consecutive model failures halts the phase so a
broken credential cannot burn the whole backlog.

The --max flag caps how many targets this run processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps((*config.Config).ValidateExtract)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			pc := deps.Config.GetPipelineConfig()

			targets, err := store.Open(pc.LedgerPath, deps.Logger)
			if err != nil {
				return fmt.Errorf("open target ledger: %w", err)
			}
			defer func() {
				if closeErr := targets.Close(); closeErr != nil {
					deps.Logger.Error("Failed to close target ledger", "error", closeErr)
				}
			}()

			results, err := sink.Open(pc.ResultsPath, deps.Logger)
			if err != nil {
				return fmt.Errorf("open results sink: %w", err)
			}
			defer func() {
				if closeErr := results.Close(); closeErr != nil {
					deps.Logger.Error("Failed to close results sink", "error", closeErr)
				}
			}()

			limiter := cmdcommon.NewLimiter(deps.Config, deps.Logger)
			processor := cmdcommon.NewProcessor(deps.Config, limiter, deps.Logger)
			p := pipeline.New(targets, results, limiter, processor, cmdcommon.PipelineConfig(deps.Config), deps.Logger)

			_, err = p.Extract(cmd.Context(), maxTargets)
			return err
		},
	}

	cmd.Flags().IntVar(&maxTargets, "max", 0,
		"Maximum number of targets to process this run (0 means all pending)")

	return cmd
}
