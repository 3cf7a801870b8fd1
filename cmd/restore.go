package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"orchestrall-backup/internal/backup"
)

var (
	restoreClearExisting bool
	restoreApplication   bool
	restoreConfiguration bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a completed backup into the database",
	Long: `Restore replays a completed backup into the database.

The backup's manifest is verified before anything is written; any checksum
mismatch aborts the restore with no rows touched. The restore itself is
non-transactional and proceeds table by table in batches, skipping rows
whose keys already exist. With --clear-existing, matching rows are deleted
first; for tenant backups only the tenant's own rows are cleared.

Examples:
  orchestrall-backup restore full-20260827-120000-a1b2c3d4
  orchestrall-backup restore tenant-20260827-130000-e5f6a7b8 --clear-existing`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List restore jobs, newest first",
	RunE:  runHistory,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreClearExisting, "clear-existing", false, "delete existing rows before restoring")
	restoreCmd.Flags().BoolVar(&restoreApplication, "application", false, "also restore the application subtree")
	restoreCmd.Flags().BoolVar(&restoreConfiguration, "configuration", false, "also restore the configuration subtree")

	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(historyCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	opts := backup.RestoreOptions{
		ClearExisting:        restoreClearExisting,
		RestoreApplication:   restoreApplication,
		RestoreConfiguration: restoreConfiguration,
	}

	result, err := service.RestoreFromBackup(cmd.Context(), args[0], opts)
	if jsonOutput {
		printJSON(result)
	}
	if err != nil {
		restore, _ := result.Data.(*backup.RestoreJob)
		if restore != nil && len(restore.RestoredTables) > 0 {
			color.Yellow("Restore failed after restoring %d table(s): %v", len(restore.RestoredTables), restore.RestoredTables)
		}
		return err
	}

	restore, _ := result.Data.(*backup.RestoreJob)
	if !jsonOutput && restore != nil {
		color.Green("Restore %s completed", restore.ID)
		fmt.Printf("  Backup:  %s\n", restore.BackupID)
		fmt.Printf("  Tables:  %d\n", len(restore.RestoredTables))
		for _, t := range restore.RestoredTables {
			fmt.Printf("    - %s\n", t)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	result, err := service.GetRestoreHistory()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}

	restores, _ := result.Data.([]*backup.RestoreJob)
	if len(restores) == 0 {
		fmt.Println("No restore jobs found")
		return nil
	}

	for _, r := range restores {
		statusColor(r.Status).Printf("%-10s", r.Status)
		fmt.Printf(" %s  backup=%s  tables=%d  %s\n",
			r.ID, r.BackupID, len(r.RestoredTables), r.StartTime.Format("2006-01-02 15:04:05"))
		if r.Error != "" {
			color.Red("           error: %s", r.Error)
		}
	}
	return nil
}

func statusColor(status backup.JobStatus) *color.Color {
	switch status {
	case backup.JobStatusCompleted:
		return color.New(color.FgGreen)
	case backup.JobStatusFailed:
		return color.New(color.FgRed)
	case backup.JobStatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}
