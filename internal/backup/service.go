package backup

import (
	"context"
	"fmt"

	"orchestrall-backup/internal/config"
	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
	"orchestrall-backup/internal/offsite"
)

// Result is the envelope returned to callers of the service API. Success
// and Error mirror the outcome; Data carries the operation's payload.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func okResult(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}

func errResult(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}

// Service is the assembled backup engine behind a stable caller-facing
// API. Every method returns a Result envelope alongside the raw error so
// callers can branch on either.
type Service struct {
	cfg          *config.Config
	store        datastore.Store
	registry     *datastore.Registry
	jobs         *JobStore
	orchestrator *Orchestrator
	restorer     *Restorer
	sweeper      *Sweeper
	verifier     *IntegrityVerifier
	logger       *logging.Logger
}

// NewService wires the engine together from configuration and an open data
// store.
func NewService(cfg *config.Config, store datastore.Store, registry *datastore.Registry, logger *logging.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewValidationError("invalid configuration", err)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	jobs, err := NewJobStore(cfg.BasePath)
	if err != nil {
		return nil, err
	}

	compressor, err := NewCompressor(CompressionType(cfg.Compression))
	if err != nil {
		return nil, err
	}
	encryptor, err := NewEncryptor(cfg.Encryption.Enabled, cfg.Encryption.Passphrase)
	if err != nil {
		return nil, err
	}

	uploader, err := offsite.NewUploader(cfg.Offsite)
	if err != nil {
		return nil, NewStorageError("failed to create offsite uploader", err)
	}

	schema := NewSchemaExporter(store, logger)
	data := NewDataExporter(store, registry, compressor, encryptor, logger)
	manifest := NewManifestBuilder(logger)
	verifier := NewIntegrityVerifier(logger)

	opts := OrchestratorOptions{
		BasePath:         cfg.BasePath,
		ApplicationDir:   cfg.ApplicationDir,
		ConfigurationDir: cfg.ConfigurationDir,
	}
	orchestrator, err := NewOrchestrator(opts, jobs, schema, data, manifest, uploader, logger)
	if err != nil {
		return nil, err
	}

	sweeper, err := NewSweeper(jobs, cfg.Retention.Days, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		jobs:         jobs,
		orchestrator: orchestrator,
		restorer:     NewRestorer(opts, store, registry, jobs, verifier, schema, data, logger),
		sweeper:      sweeper,
		verifier:     verifier,
		logger:       logger,
	}, nil
}

// CreateFullBackup runs a full backup.
func (s *Service) CreateFullBackup(ctx context.Context) (*Result, error) {
	job, err := s.orchestrator.CreateFullBackup(ctx)
	if err != nil {
		return errResult(err), err
	}
	return okResult(job), nil
}

// CreateIncrementalBackup runs an incremental backup.
func (s *Service) CreateIncrementalBackup(ctx context.Context) (*Result, error) {
	job, err := s.orchestrator.CreateIncrementalBackup(ctx)
	if err != nil {
		return errResult(err), err
	}
	return okResult(job), nil
}

// CreateTenantBackup runs a backup scoped to one tenant.
func (s *Service) CreateTenantBackup(ctx context.Context, tenantID string) (*Result, error) {
	job, err := s.orchestrator.CreateTenantBackup(ctx, tenantID)
	if err != nil {
		return errResult(err), err
	}
	return okResult(job), nil
}

// RestoreFromBackup replays a completed backup into the data store.
func (s *Service) RestoreFromBackup(ctx context.Context, backupID string, opts RestoreOptions) (*Result, error) {
	restore, err := s.restorer.Restore(ctx, backupID, opts)
	if err != nil {
		result := errResult(err)
		result.Data = restore
		return result, err
	}
	return okResult(restore), nil
}

// ListBackups lists backup job records matching the filter, newest first.
func (s *Service) ListBackups(filter JobFilter) (*Result, error) {
	jobs, err := s.jobs.ListJobs(filter)
	if err != nil {
		return errResult(err), err
	}
	return okResult(jobs), nil
}

// GetBackup loads a single backup job record.
func (s *Service) GetBackup(backupID string) (*Result, error) {
	job, err := s.jobs.GetJob(backupID)
	if err != nil {
		return errResult(err), err
	}
	return okResult(job), nil
}

// VerifyBackup recomputes a backup's manifest checksums without restoring.
func (s *Service) VerifyBackup(backupID string) (*Result, error) {
	job, err := s.jobs.GetJob(backupID)
	if err != nil {
		return errResult(err), err
	}
	manifest, err := s.verifier.Verify(job.StoragePath)
	if err != nil {
		return errResult(err), err
	}
	return okResult(manifest), nil
}

// DeleteBackup removes a backup's files and record. Backups held by a
// running restore are refused, as are jobs that have not reached a
// terminal state: deleting a running backup would pull the directory out
// from under the export.
func (s *Service) DeleteBackup(backupID string) (*Result, error) {
	job, err := s.jobs.GetJob(backupID)
	if err != nil {
		return errResult(err), err
	}
	if !job.Status.Terminal() {
		err := NewConflictError(fmt.Sprintf("backup %s is %s and cannot be deleted", backupID, job.Status), nil)
		return errResult(err), err
	}
	if s.jobs.InUse(backupID) {
		err := NewConflictError(fmt.Sprintf("backup %s is in use by a restore", backupID), nil)
		return errResult(err), err
	}

	if job.StoragePath != "" && fsys.Exists(job.StoragePath) {
		if err := fsys.RemoveAll(job.StoragePath); err != nil {
			serr := NewStorageError("failed to delete backup files", err)
			return errResult(serr), serr
		}
	}
	if err := s.jobs.DeleteJob(backupID); err != nil {
		return errResult(err), err
	}
	return okResult(map[string]string{"deleted": backupID}), nil
}

// GetRestoreHistory lists restore job records, newest first.
func (s *Service) GetRestoreHistory() (*Result, error) {
	restores, err := s.jobs.ListRestoreJobs()
	if err != nil {
		return errResult(err), err
	}
	return okResult(restores), nil
}

// SweepRetention runs one retention sweep.
func (s *Service) SweepRetention(ctx context.Context) (*Result, error) {
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return errResult(err), err
	}
	return okResult(result), nil
}

// StartScheduler wires the configured schedules onto a scheduler and starts
// it. The caller owns the returned scheduler and stops it on shutdown.
func (s *Service) StartScheduler() (*Scheduler, error) {
	sched := NewScheduler(s.logger)

	if s.cfg.Schedule.Enabled {
		if s.cfg.Schedule.Full != "" {
			if err := sched.AddJob("full-backup", s.cfg.Schedule.Full, func(ctx context.Context) error {
				_, err := s.orchestrator.CreateFullBackup(ctx)
				return err
			}); err != nil {
				return nil, err
			}
		}
		if s.cfg.Schedule.Incremental != "" {
			if err := sched.AddJob("incremental-backup", s.cfg.Schedule.Incremental, func(ctx context.Context) error {
				_, err := s.orchestrator.CreateIncrementalBackup(ctx)
				return err
			}); err != nil {
				return nil, err
			}
		}
	}

	if s.cfg.Retention.SweepSchedule != "" {
		if err := sched.AddJob("retention-sweep", s.cfg.Retention.SweepSchedule, func(ctx context.Context) error {
			_, err := s.sweeper.Sweep(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
