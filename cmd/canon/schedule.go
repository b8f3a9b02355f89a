package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/services/cleanup"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run cleanup on the configured cron schedule",
	Long: `Schedule keeps running and triggers cleanup on the cron schedule from
[cleanup].schedule until interrupted. Runs never overlap.`,
	RunE: runSchedule,
}

var (
	scheduleApply  bool
	scheduleRunNow bool
)

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleApply, "apply", false, "Scheduled runs archive and delete files (default is a preview)")
	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "run-now", false, "Trigger one cleanup immediately after starting")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !quietFlag {
		common.PrintBanner()
	}

	if err := common.CheckEnvironment(config, nil); err != nil {
		return err
	}

	a, err := newApp(ctx, app.Options{History: true})
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := a.NewScheduler(cleanup.Options{Apply: scheduleApply})
	if err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if scheduleRunNow {
		if err := scheduler.RunNow("cleanup"); err != nil {
			logger.Warn().Err(err).Msg("Immediate cleanup failed")
		}
	}

	logger.Info().
		Str("schedule", config.Cleanup.Schedule).
		Bool("apply", scheduleApply).
		Msg("Scheduler running, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Shutting down scheduler")
	return nil
}
