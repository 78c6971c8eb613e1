// Package status implements the status command, a point-in-time view of
// the target ledger and the upstream rate limiters.
package status

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/store"
)

const (
	// listLimit bounds the detail sections so a large ledger stays
	// readable.
	listLimit = 50
	// reasonWidth clips failure reasons to one table cell.
	reasonWidth = 60

	timeFormat = "2006-01-02 15:04"
)

// Renderer formats ledger state as tables on stdout.
type Renderer struct{}

// RenderSummary displays per-status target counts.
func (r *Renderer) RenderSummary(stats store.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Status", "Targets"})
	t.AppendRow(table.Row{domain.StatusPending, stats.Pending})
	t.AppendRow(table.Row{domain.StatusInProgress, stats.InProgress})
	t.AppendRow(table.Row{domain.StatusCompleted, stats.Completed})
	t.AppendRow(table.Row{domain.StatusFailed, stats.Failed})
	t.AppendFooter(table.Row{"total", stats.Total})

	t.Render()
}

// RenderPending displays the oldest pending targets.
func (r *Renderer) RenderPending(targets []*domain.Target) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Name", "Discovered", "Attempts"})
	for _, target := range targets {
		t.AppendRow(table.Row{
			target.ID,
			target.Name,
			target.DiscoveredAt.Format(timeFormat),
			target.AttemptCount,
		})
	}

	t.Render()
}

// RenderFailed displays failed targets with their failure reasons.
func (r *Renderer) RenderFailed(targets []*domain.Target) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Name", "Attempts", "Last Attempt", "Reason"})
	for _, target := range targets {
		t.AppendRow(table.Row{
			target.ID,
			target.Name,
			target.AttemptCount,
			formatTime(target.LastAttemptedAt),
			clip(target.FailureReason, reasonWidth),
		})
	}

	t.Render()
}

// Command returns the status command for use in the root command.
func Command() *cobra.Command {
	var (
		showPending bool
		showFailed  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show target counts and optional per-target detail",
		Long: `Status summarizes the target ledger by lifecycle state. The
--show-pending and --show-failed flags add per-target detail sections.`,
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

			renderer := &Renderer{}
			renderer.RenderSummary(targets.Stats())

			if showPending {
				fmt.Println("\nPending targets:")
				renderer.RenderPending(targets.List(domain.StatusPending, listLimit))
			}
			if showFailed {
				fmt.Println("\nFailed targets:")
				renderer.RenderFailed(targets.List(domain.StatusFailed, listLimit))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showPending, "show-pending", false, "List pending targets")
	cmd.Flags().BoolVar(&showFailed, "show-failed", false, "List failed targets with reasons")

	return cmd
}

// formatTime renders a nullable timestamp.
func formatTime(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Format(timeFormat)
}

// clip shortens s to at most n runes for table display.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
