package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"orchestrall-backup/internal/backup"
)

var backupTenantID string

// backupCmd groups the backup creation subcommands.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create database backups",
	Long: `Create full, incremental, or tenant-scoped backups.

A full backup snapshots the schema and every registered table. An
incremental backup exports rows modified since the end of the last
completed full or incremental backup. A tenant backup exports one
organization's rows across the tenant-scoped tables.

Examples:
  orchestrall-backup backup full
  orchestrall-backup backup incremental
  orchestrall-backup backup tenant --tenant org-42`,
}

var backupFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Create a full backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, func(ctx context.Context, s *backup.Service) (*backup.Result, error) {
			return s.CreateFullBackup(ctx)
		})
	},
}

var backupIncrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Create an incremental backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, func(ctx context.Context, s *backup.Service) (*backup.Result, error) {
			return s.CreateIncrementalBackup(ctx)
		})
	},
}

var backupTenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Create a backup scoped to one tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backupTenantID == "" {
			return fmt.Errorf("--tenant is required")
		}
		return runBackup(cmd, func(ctx context.Context, s *backup.Service) (*backup.Result, error) {
			return s.CreateTenantBackup(ctx, backupTenantID)
		})
	},
}

func init() {
	backupTenantCmd.Flags().StringVar(&backupTenantID, "tenant", "", "tenant (organization) identifier")

	backupCmd.AddCommand(backupFullCmd)
	backupCmd.AddCommand(backupIncrementalCmd)
	backupCmd.AddCommand(backupTenantCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, create func(context.Context, *backup.Service) (*backup.Result, error)) error {
	service, _, err := newService(cmd)
	if err != nil {
		return err
	}

	result, err := create(cmd.Context(), service)
	if err != nil {
		return err
	}

	job, _ := result.Data.(*backup.Job)
	if jsonOutput {
		return printJSON(result)
	}
	if job == nil {
		return nil
	}

	color.Green("Backup %s completed", job.ID)
	fmt.Printf("  Type:     %s\n", job.Type)
	fmt.Printf("  Location: %s\n", job.StoragePath)
	fmt.Printf("  Size:     %s\n", humanSize(job.SizeBytes))
	if len(job.Metadata.Tables) > 0 {
		fmt.Printf("  Tables:   %d\n", len(job.Metadata.Tables))
	}
	for _, w := range job.Metadata.Warnings {
		color.Yellow("  Warning:  %s", w)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
