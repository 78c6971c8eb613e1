// Package export implements the export command, shipping collected
// results into Elasticsearch.
package export

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/exporter"
	"github.com/jonesrussell/gointel/internal/sink"
)

// Command returns the export command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Bulk-index collected results into Elasticsearch",
		Long: `Export reads the results sink and bulk-indexes every record into the
configured Elasticsearch index. Documents are keyed by target id, so
re-running an export overwrites rather than duplicates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps((*config.Config).ValidateExport)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			records, err := sink.Read(deps.Config.GetPipelineConfig().ResultsPath)
			if err != nil {
				return fmt.Errorf("read results sink: %w", err)
			}
			if len(records) == 0 {
				deps.Logger.Info("No results to export")
				return nil
			}

			esCfg := deps.Config.GetElasticsearchConfig()
			exp, err := exporter.New(exporter.Options{
				Addresses:          esCfg.Addresses,
				APIKey:             esCfg.APIKey,
				Username:           esCfg.Username,
				Password:           esCfg.Password,
				IndexName:          esCfg.IndexName,
				FlushBytes:         esCfg.FlushBytes,
				FlushInterval:      esCfg.FlushInterval,
				InsecureSkipVerify: esCfg.InsecureSkipVerify,
			}, deps.Logger)
			if err != nil {
				return fmt.Errorf("connect to elasticsearch: %w", err)
			}

			ctx := cmd.Context()
			if err := exp.EnsureIndex(ctx); err != nil {
				return fmt.Errorf("ensure results index: %w", err)
			}

			stats, err := exp.Export(ctx, records)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("export finished with %d failed documents", stats.Failed)
			}

			return nil
		},
	}
}
