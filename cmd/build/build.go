// Package build implements the build command, the discovery phase of a
// collection run.
package build

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/pipeline"
	"github.com/jonesrussell/gointel/internal/store"
)

// Command returns the build command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Discover candidates and record them as pending targets",
		Long: `Build walks the configured discovery sources across their listing axes
and upserts every qualifying candidate into the target ledger as pending.

The phase is idempotent: re-running it refreshes names and metadata
without duplicating targets or regressing completed ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps((*config.Config).ValidateBuild)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			limiter := cmdcommon.NewLimiter(deps.Config, deps.Logger)

			adapters, err := cmdcommon.LoadAdapters(deps.Config, limiter, deps.Logger)
			if err != nil {
				return err
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

			p := pipeline.New(targets, nil, limiter, nil, cmdcommon.PipelineConfig(deps.Config), deps.Logger)

			_, err = p.Build(cmd.Context(), adapters)
			return err
		},
	}
}
