package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
)

// restoreBatchSize caps the number of rows written per insert batch.
const restoreBatchSize = 1000

// Restorer replays a completed backup into the data store. Restores are
// non-transactional: each batch commits independently, and a mid-restore
// failure leaves the rows already written in place. The failed restore job
// records which tables completed before the failure.
type Restorer struct {
	opts     OrchestratorOptions
	store    datastore.Store
	registry *datastore.Registry
	jobs     *JobStore
	verifier *IntegrityVerifier
	schema   *SchemaExporter
	data     *DataExporter
	logger   *logging.Logger

	now func() time.Time
}

// NewRestorer creates a restorer.
func NewRestorer(opts OrchestratorOptions, store datastore.Store, registry *datastore.Registry, jobs *JobStore, verifier *IntegrityVerifier, schema *SchemaExporter, data *DataExporter, logger *logging.Logger) *Restorer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Restorer{
		opts:     opts,
		store:    store,
		registry: registry,
		jobs:     jobs,
		verifier: verifier,
		schema:   schema,
		data:     data,
		logger:   logger,
		now:      time.Now,
	}
}

// Restore replays the given backup. The backup must exist and be completed;
// integrity verification runs before any table write and fails closed. The
// backup is held in use for the duration so the retention sweeper cannot
// delete it mid-restore.
func (r *Restorer) Restore(ctx context.Context, backupID string, opts RestoreOptions) (*RestoreJob, error) {
	job, err := r.jobs.GetJob(backupID)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, NewValidationError(fmt.Sprintf("backup %s does not exist", backupID), err)
		}
		return nil, err
	}
	if job.Status != JobStatusCompleted {
		return nil, NewValidationError(fmt.Sprintf("backup %s is %s, only completed backups can be restored", backupID, job.Status), nil)
	}

	release := r.jobs.Acquire(backupID)
	defer release()

	restore := &RestoreJob{
		ID:        GenerateJobID("restore"),
		BackupID:  backupID,
		Status:    JobStatusPending,
		StartTime: r.now().UTC(),
		Options:   opts,
	}
	if err := r.jobs.SaveRestoreJob(restore); err != nil {
		return nil, err
	}

	restore.Status = JobStatusRunning
	if err := r.jobs.SaveRestoreJob(restore); err != nil {
		return nil, err
	}

	if err := r.run(ctx, job, restore, opts); err != nil {
		r.failRestore(restore, err)
		return restore, err
	}

	end := r.now().UTC()
	restore.Status = JobStatusCompleted
	restore.EndTime = &end
	if err := r.jobs.SaveRestoreJob(restore); err != nil {
		return restore, err
	}

	r.logger.WithFields(map[string]interface{}{
		"operation":  "restore",
		"restore_id": restore.ID,
		"backup_id":  backupID,
		"tables":     len(restore.RestoredTables),
		"duration":   end.Sub(restore.StartTime).String(),
	}).Info("Restore completed")
	return restore, nil
}

func (r *Restorer) run(ctx context.Context, job *Job, restore *RestoreJob, opts RestoreOptions) error {
	// Fail closed: nothing is written unless every checksum matches.
	if _, err := r.verifier.Verify(job.StoragePath); err != nil {
		return err
	}

	// The schema snapshot is informational. The data store carries no DDL
	// capability, so a drifted schema is reported, not repaired.
	if doc, err := r.schema.Load(job.StoragePath); err != nil {
		r.logger.Warnf("Failed to load schema snapshot for %s: %v", job.ID, err)
	} else if doc != nil {
		r.logger.Debugf("Backup %s carries a schema snapshot of %d tables", job.ID, len(doc.Tables))
	}

	if err := r.restoreTables(ctx, job, restore, opts); err != nil {
		return err
	}

	if opts.RestoreApplication {
		if err := r.copyBack(job.StoragePath, applicationDir, r.opts.ApplicationDir); err != nil {
			return err
		}
	}
	if opts.RestoreConfiguration {
		if err := r.copyBack(job.StoragePath, configurationDir, r.opts.ConfigurationDir); err != nil {
			return err
		}
	}
	return nil
}

func (r *Restorer) restoreTables(ctx context.Context, job *Job, restore *RestoreJob, opts RestoreOptions) error {
	// A fully sparse incremental backup has no database directory at all.
	root := filepath.Join(job.StoragePath, dataDir)
	if !fsys.Exists(root) {
		r.logger.Warnf("Backup %s contains no table exports", job.ID)
		return nil
	}

	files, err := fsys.Walk(root)
	if err != nil {
		return NewRestoreError("failed to list table exports", err)
	}

	for _, f := range files {
		table, ok := tableFromFilename(f.Path, job.Type)
		if !ok {
			continue
		}
		spec, ok := r.registry.Lookup(table)
		if !ok {
			r.logger.Warnf("Skipping export for unknown table %s", table)
			continue
		}

		rows, err := r.data.ReadTable(filepath.Join(job.StoragePath, dataDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return NewRestoreError(fmt.Sprintf("failed to decode export for table %s", table), err)
		}

		if opts.ClearExisting {
			filter := datastore.Filter{}
			if job.Type == JobTypeTenant {
				// Tenant restores only ever clear the tenant's own rows.
				filter.Equals = map[string]interface{}{spec.TenantColumn: job.Metadata.TenantID}
			}
			if _, err := r.store.DeleteMany(ctx, table, filter); err != nil {
				return NewRestoreError(fmt.Sprintf("failed to clear table %s", table), err)
			}
		}

		if err := r.insertBatched(ctx, restore.ID, table, rows); err != nil {
			return err
		}

		restore.RestoredTables = append(restore.RestoredTables, table)
	}

	if len(restore.RestoredTables) == 0 && job.Type != JobTypeIncremental {
		r.logger.Warnf("Backup %s contained no table exports", job.ID)
	}
	return nil
}

// insertBatched writes rows in fixed-size batches. Duplicate keys are
// skipped so replaying a backup over live data is idempotent for unchanged
// rows.
func (r *Restorer) insertBatched(ctx context.Context, restoreID, table string, rows []datastore.Row) error {
	for offset := 0; offset < len(rows); offset += restoreBatchSize {
		end := offset + restoreBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := r.store.CreateMany(ctx, table, rows[offset:end], true); err != nil {
			r.logger.LogTableRestore(restoreID, table, offset, err)
			return NewRestoreError(fmt.Sprintf("failed to insert batch into %s at row %d", table, offset), err)
		}
	}
	r.logger.LogTableRestore(restoreID, table, len(rows), nil)
	return nil
}

func (r *Restorer) copyBack(backupDir, subdir, target string) error {
	src := filepath.Join(backupDir, subdir)
	if !fsys.Exists(src) {
		r.logger.Warnf("Backup carries no %s subtree, skipping", subdir)
		return nil
	}
	if target == "" {
		return NewValidationError(fmt.Sprintf("no target directory configured for %s restore", subdir), nil)
	}
	if err := fsys.CopyTree(src, target); err != nil {
		return NewRestoreError(fmt.Sprintf("failed to restore %s subtree", subdir), err)
	}
	return nil
}

func (r *Restorer) failRestore(restore *RestoreJob, cause error) {
	end := r.now().UTC()
	restore.Status = JobStatusFailed
	restore.EndTime = &end
	restore.Error = cause.Error()

	if err := r.jobs.SaveRestoreJob(restore); err != nil {
		r.logger.Errorf("Failed to persist failed state for restore %s: %v", restore.ID, err)
	}
	r.logger.Errorf("Restore %s of backup %s failed: %v", restore.ID, restore.BackupID, cause)
}

// restorableTables returns the table names a backup's export files cover,
// in registry order. Used by callers that want to preview a restore.
func (r *Restorer) restorableTables(job *Job) ([]string, error) {
	root := filepath.Join(job.StoragePath, dataDir)
	if !fsys.Exists(root) {
		return nil, nil
	}

	files, err := fsys.Walk(root)
	if err != nil {
		return nil, NewRestoreError("failed to list table exports", err)
	}

	present := make(map[string]bool)
	for _, f := range files {
		if table, ok := tableFromFilename(f.Path, job.Type); ok {
			present[table] = true
		}
	}

	var tables []string
	for _, name := range r.registry.Names() {
		if present[name] {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// PreviewRestore reports which tables a restore of the given backup would
// touch, without writing anything.
func (r *Restorer) PreviewRestore(backupID string) ([]string, error) {
	job, err := r.jobs.GetJob(backupID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusCompleted {
		return nil, NewValidationError(fmt.Sprintf("backup %s is %s, only completed backups can be restored", backupID, job.Status), nil)
	}
	return r.restorableTables(job)
}
