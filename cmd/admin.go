package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"orchestrall-backup/internal/backup"
)

var (
	listType   string
	listStatus string
	listTenant string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Long: `List backup job records, newest first.

Examples:
  orchestrall-backup list
  orchestrall-backup list --type full
  orchestrall-backup list --status failed
  orchestrall-backup list --tenant org-42 --json`,
	RunE: runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup's files and record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <backup-id>",
	Short: "Verify a backup's manifest checksums",
	Long: `Verify recomputes every SHA-256 checksum listed in a backup's manifest
against the files on disk, without restoring anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete completed backups older than the retention window",
	RunE:  runSweep,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "filter by type (full, incremental, tenant)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending, running, completed, failed)")
	listCmd.Flags().StringVar(&listTenant, "tenant", "", "filter by tenant identifier")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	filter := backup.JobFilter{
		Type:     backup.JobType(listType),
		Status:   backup.JobStatus(listStatus),
		TenantID: listTenant,
	}
	result, err := service.ListBackups(filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}

	jobs, _ := result.Data.([]*backup.Job)
	if len(jobs) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	for _, job := range jobs {
		statusColor(job.Status).Printf("%-10s", job.Status)
		fmt.Printf(" %s  %-11s %10s  %s",
			job.ID, job.Type, humanSize(job.SizeBytes), job.StartTime.Format("2006-01-02 15:04:05"))
		if job.Metadata.TenantID != "" {
			fmt.Printf("  tenant=%s", job.Metadata.TenantID)
		}
		if len(job.Metadata.Warnings) > 0 {
			color.Yellow("  (%d warnings)", len(job.Metadata.Warnings))
		}
		fmt.Println()
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	result, err := service.DeleteBackup(args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	color.Green("Backup %s deleted", args[0])
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	result, err := service.VerifyBackup(args[0])
	if jsonOutput {
		printJSON(result)
	}
	if err != nil {
		return err
	}

	if !jsonOutput {
		manifest, _ := result.Data.(*backup.Manifest)
		if manifest != nil {
			color.Green("Backup %s verified: %d files intact", args[0], len(manifest.Checksums))
		}
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	result, err := service.SweepRetention(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}

	sweep, _ := result.Data.(*backup.SweepResult)
	if sweep == nil {
		return nil
	}
	fmt.Printf("Scanned %d completed backup(s): deleted %d, skipped %d, failed %d\n",
		sweep.Scanned, sweep.Deleted, sweep.Skipped, sweep.Failed)
	for _, e := range sweep.Errors {
		color.Red("  %s", e)
	}
	return nil
}
