package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
	"orchestrall-backup/internal/offsite"
)

// Subdirectories of a backup for the optional artifact subtrees.
const (
	applicationDir   = "application"
	configurationDir = "configuration"
)

// OrchestratorOptions configures backup creation.
type OrchestratorOptions struct {
	// BasePath is the root of all backup storage.
	BasePath string
	// ApplicationDir, when set, is copied into full backups under
	// application/.
	ApplicationDir string
	// ConfigurationDir, when set, is copied into full backups under
	// configuration/.
	ConfigurationDir string
}

// Orchestrator drives backup jobs through their lifecycle: a pending record
// is written first, moves to running for the export phase, and ends
// completed or failed. Terminal records are immutable.
type Orchestrator struct {
	opts     OrchestratorOptions
	jobs     *JobStore
	schema   *SchemaExporter
	data     *DataExporter
	manifest *ManifestBuilder
	uploader offsite.Uploader
	logger   *logging.Logger

	now func() time.Time
}

// NewOrchestrator creates a backup orchestrator. uploader may be nil to
// disable offsite replication.
func NewOrchestrator(opts OrchestratorOptions, jobs *JobStore, schema *SchemaExporter, data *DataExporter, manifest *ManifestBuilder, uploader offsite.Uploader, logger *logging.Logger) (*Orchestrator, error) {
	if opts.BasePath == "" {
		return nil, NewValidationError("backup base path is required", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Orchestrator{
		opts:     opts,
		jobs:     jobs,
		schema:   schema,
		data:     data,
		manifest: manifest,
		uploader: uploader,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// CreateFullBackup exports the schema snapshot and every registered table.
// A schema export failure is fatal; table export failures degrade to
// warnings on the completed job.
func (o *Orchestrator) CreateFullBackup(ctx context.Context) (*Job, error) {
	job, err := o.beginJob(JobTypeFull, JobMetadata{})
	if err != nil {
		return nil, err
	}

	return o.runJob(ctx, job, func(backupDir string) ([]string, []string, error) {
		if err := o.schema.Export(ctx, backupDir); err != nil {
			return nil, nil, NewFatalExportError("schema export failed", err)
		}

		tables, warnings := o.data.ExportFull(ctx, job.ID, backupDir)
		warnings = append(warnings, o.copyArtifacts(backupDir)...)
		return tables, warnings, nil
	})
}

// CreateIncrementalBackup exports rows modified since the end of the most
// recent completed full or incremental backup. With no prior completed
// backup the cutoff falls back to the zero time and the job carries a
// warning, making the first incremental equivalent to a full data export.
func (o *Orchestrator) CreateIncrementalBackup(ctx context.Context) (*Job, error) {
	var warnings []string

	last, err := o.jobs.LastCompletedBackup(JobTypeFull, JobTypeIncremental)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if last != nil {
		cutoff = last.EndTime.UTC()
	} else {
		warnings = append(warnings, "no completed full or incremental backup found; exporting all rows")
		o.logger.Warn("No completed backup found for incremental cutoff, exporting all rows")
	}

	job, err := o.beginJob(JobTypeIncremental, JobMetadata{CutoffTime: &cutoff})
	if err != nil {
		return nil, err
	}

	return o.runJob(ctx, job, func(backupDir string) ([]string, []string, error) {
		tables, ws := o.data.ExportIncremental(ctx, job.ID, backupDir, cutoff)
		return tables, append(warnings, ws...), nil
	})
}

// CreateTenantBackup exports the tenant-scoped table set for a single
// tenant.
func (o *Orchestrator) CreateTenantBackup(ctx context.Context, tenantID string) (*Job, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant ID is required", nil)
	}

	job, err := o.beginJob(JobTypeTenant, JobMetadata{TenantID: tenantID})
	if err != nil {
		return nil, err
	}

	return o.runJob(ctx, job, func(backupDir string) ([]string, []string, error) {
		tables, warnings := o.data.ExportTenant(ctx, job.ID, backupDir, tenantID)
		return tables, warnings, nil
	})
}

// beginJob writes the pending record, then transitions it to running.
func (o *Orchestrator) beginJob(jobType JobType, metadata JobMetadata) (*Job, error) {
	start := o.now().UTC()
	metadata.Compression = string(o.data.compressor.Algorithm())
	metadata.Encrypted = o.data.encryptor.Enabled()

	job := &Job{
		ID:        GenerateJobID(string(jobType)),
		Type:      jobType,
		Status:    JobStatusPending,
		StartTime: start,
		Metadata:  metadata,
	}
	job.StoragePath = filepath.Join(o.opts.BasePath, string(jobType),
		fmt.Sprintf("%s_%s_%s", job.ID, jobType, start.Format("20060102-150405")))

	if err := o.jobs.SaveJob(job); err != nil {
		return nil, err
	}

	job.Status = JobStatusRunning
	if err := o.jobs.SaveJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// runJob executes the export phase and settles the job into a terminal
// state. A returned error from export fails the job; warnings ride along on
// the completed record.
func (o *Orchestrator) runJob(ctx context.Context, job *Job, export func(backupDir string) (tables []string, warnings []string, err error)) (*Job, error) {
	if err := fsys.MkdirAll(job.StoragePath); err != nil {
		return nil, o.failJob(job, NewStorageError("failed to create backup directory", err))
	}

	tables, warnings, err := export(job.StoragePath)
	if err != nil {
		return nil, o.failJob(job, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, o.failJob(job, NewStorageError("backup cancelled", err))
	}

	if _, err := o.manifest.Build(job.StoragePath, job); err != nil {
		return nil, o.failJob(job, err)
	}

	size, err := fsys.DirSize(job.StoragePath)
	if err != nil {
		return nil, o.failJob(job, NewStorageError("failed to measure backup size", err))
	}

	if o.uploader != nil {
		remotePrefix := fmt.Sprintf("%s/%s", job.Type, filepath.Base(job.StoragePath))
		if err := o.uploader.Upload(ctx, job.StoragePath, remotePrefix); err != nil {
			warnings = append(warnings, fmt.Sprintf("offsite upload to %s failed: %v", o.uploader.Provider(), err))
			o.logger.Warnf("Offsite upload to %s failed for %s: %v", o.uploader.Provider(), job.ID, err)
		}
	}

	end := o.now().UTC()
	job.Status = JobStatusCompleted
	job.EndTime = &end
	job.SizeBytes = size
	job.Metadata.Tables = tables
	job.Metadata.Warnings = warnings
	if err := o.jobs.SaveJob(job); err != nil {
		return nil, err
	}

	o.logger.LogBackupCompleted(job.ID, string(job.Type), size, len(warnings), end.Sub(job.StartTime))
	return job, nil
}

// failJob marks the job failed and returns the original error. The partial
// backup directory is left in place for inspection; the retention sweeper
// never touches failed jobs' files because only completed jobs are swept.
func (o *Orchestrator) failJob(job *Job, cause error) error {
	end := o.now().UTC()
	job.Status = JobStatusFailed
	job.EndTime = &end
	job.Metadata.Error = cause.Error()

	if saveErr := o.jobs.SaveJob(job); saveErr != nil {
		o.logger.Errorf("Failed to persist failed state for job %s: %v", job.ID, saveErr)
	}
	o.logger.Errorf("Backup %s failed: %v", job.ID, cause)
	return cause
}

// copyArtifacts copies the configured application and configuration
// directories into the backup. Failures degrade to warnings.
func (o *Orchestrator) copyArtifacts(backupDir string) []string {
	var warnings []string

	if o.opts.ApplicationDir != "" {
		if fsys.Exists(o.opts.ApplicationDir) {
			if err := fsys.CopyTree(o.opts.ApplicationDir, filepath.Join(backupDir, applicationDir)); err != nil {
				warnings = append(warnings, fmt.Sprintf("application: %v", err))
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("application: directory %s does not exist", o.opts.ApplicationDir))
		}
	}

	if o.opts.ConfigurationDir != "" {
		if fsys.Exists(o.opts.ConfigurationDir) {
			if err := fsys.CopyTree(o.opts.ConfigurationDir, filepath.Join(backupDir, configurationDir)); err != nil {
				warnings = append(warnings, fmt.Sprintf("configuration: %v", err))
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("configuration: directory %s does not exist", o.opts.ConfigurationDir))
		}
	}

	return warnings
}
