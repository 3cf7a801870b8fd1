package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the backup scheduler as a foreground daemon",
	Long: `Run the backup scheduler until interrupted.

The scheduler fires the configured full and incremental backup schedules
plus the retention sweep. A tick that arrives while the previous run of
the same job is still in flight is skipped, never queued. Missed ticks
(e.g. while the process was down) are not replayed.

Schedules come from the configuration file:

  schedule:
    enabled: true
    full: "0 2 * * *"
    incremental: "0 */6 * * *"
  retention:
    sweep_schedule: "0 3 * * *"`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	service, cfg, err := newService(cmd)
	if err != nil {
		return err
	}
	if !cfg.Schedule.Enabled && cfg.Retention.SweepSchedule == "" {
		return fmt.Errorf("nothing to schedule: enable schedule.enabled or set retention.sweep_schedule")
	}

	sched, err := service.StartScheduler()
	if err != nil {
		return err
	}
	defer sched.Stop()

	color.Green("Scheduler running (press Ctrl+C to stop)")
	if cfg.Schedule.Enabled {
		if cfg.Schedule.Full != "" {
			fmt.Printf("  full:        %s\n", cfg.Schedule.Full)
		}
		if cfg.Schedule.Incremental != "" {
			fmt.Printf("  incremental: %s\n", cfg.Schedule.Incremental)
		}
	}
	if cfg.Retention.SweepSchedule != "" {
		fmt.Printf("  sweep:       %s\n", cfg.Retention.SweepSchedule)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("Shutting down, waiting for running jobs to finish")
	return nil
}
