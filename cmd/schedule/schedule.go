// Package schedule implements the schedule command, running collection
// phases periodically until interrupted.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/pipeline"
	schedulepkg "github.com/jonesrussell/gointel/internal/schedule"
	"github.com/jonesrussell/gointel/internal/sink"
	"github.com/jonesrussell/gointel/internal/store"
)

// stopTimeout bounds the wait for in-flight phase runs on shutdown.
const stopTimeout = 30 * time.Second

// Command returns the schedule command for use in the root command.
func Command() *cobra.Command {
	var cronOverride string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run build and extract on cron schedules",
		Long: `Schedule keeps the pipeline running: the build and extract phases fire
on their configured cron expressions (schedule.build and
schedule.extract) until the process is interrupted.

With --cron the two phases instead run back to back as a single cycle
on the given expression.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps(validateSchedule)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			return run(cmd.Context(), deps, cronOverride)
		},
	}

	cmd.Flags().StringVar(&cronOverride, "cron", "",
		"Run build then extract as one cycle on this cron expression (overrides configured schedules)")

	return cmd
}

// validateSchedule checks everything both phases need, since scheduled
// cycles run discovery and extraction alike.
func validateSchedule(cfg *config.Config) error {
	if err := cfg.ValidateBuild(); err != nil {
		return err
	}
	return cfg.ValidateExtract()
}

// run wires the pipeline, registers the cron jobs and blocks until the
// context is cancelled.
func run(ctx context.Context, deps cmdcommon.CommandDeps, cronOverride string) error {
	limiter := cmdcommon.NewLimiter(deps.Config, deps.Logger)

	adapters, err := cmdcommon.LoadAdapters(deps.Config, limiter, deps.Logger)
	if err != nil {
		return err
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

	processor := cmdcommon.NewProcessor(deps.Config, limiter, deps.Logger)
	p := pipeline.New(targets, results, limiter, processor, cmdcommon.PipelineConfig(deps.Config), deps.Logger)

	sc := deps.Config.GetScheduleConfig()
	buildRun := func(runCtx context.Context) error {
		_, buildErr := p.Build(runCtx, adapters)
		return buildErr
	}
	extractRun := func(runCtx context.Context) error {
		_, extractErr := p.Extract(runCtx, sc.ExtractMax)
		return extractErr
	}

	scheduler := schedulepkg.NewScheduler(deps.Logger)
	if err := registerJobs(scheduler, sc, cronOverride, buildRun, extractRun); err != nil {
		return err
	}

	if err := scheduler.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if stopErr := scheduler.Stop(stopCtx); stopErr != nil {
		return stopErr
	}

	return ctx.Err()
}

// registerJobs adds the cron entries. An empty configured expression
// disables that phase; at least one job must remain.
func registerJobs(
	scheduler *schedulepkg.Scheduler,
	sc *config.ScheduleConfig,
	cronOverride string,
	buildRun, extractRun func(ctx context.Context) error,
) error {
	if cronOverride != "" {
		return scheduler.Add(schedulepkg.Job{
			Name: "cycle",
			Spec: cronOverride,
			Run: func(ctx context.Context) error {
				if err := buildRun(ctx); err != nil {
					return err
				}
				return extractRun(ctx)
			},
		})
	}

	registered := 0
	if sc.Build != "" {
		if err := scheduler.Add(schedulepkg.Job{Name: "build", Spec: sc.Build, Run: buildRun}); err != nil {
			return err
		}
		registered++
	}
	if sc.Extract != "" {
		if err := scheduler.Add(schedulepkg.Job{Name: "extract", Spec: sc.Extract, Run: extractRun}); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return errors.New("no schedules configured: set schedule.build, schedule.extract or --cron")
	}

	return nil
}
