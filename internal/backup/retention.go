package backup

import (
	"context"
	"fmt"
	"time"

	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
)

// Sweeper deletes completed backups older than the retention window. Only
// completed jobs are swept; pending, running, and failed records are left
// alone. A backup currently held by a restore is skipped this sweep and
// picked up by the next one.
type Sweeper struct {
	jobs          *JobStore
	retentionDays int
	logger        *logging.Logger

	now func() time.Time
}

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Scanned int      `json:"scanned"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// NewSweeper creates a retention sweeper.
func NewSweeper(jobs *JobStore, retentionDays int, logger *logging.Logger) (*Sweeper, error) {
	if retentionDays <= 0 {
		return nil, NewValidationError("retention days must be positive", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Sweeper{
		jobs:          jobs,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Sweep deletes every completed backup whose end time is older than the
// retention cutoff. Per-backup failures are recorded and the sweep
// continues; sweeping is idempotent, so a failed deletion is retried on the
// next run.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	start := s.now()
	cutoff := start.UTC().AddDate(0, 0, -s.retentionDays)
	result := &SweepResult{}

	jobs, err := s.jobs.ListJobs(JobFilter{Status: JobStatusCompleted})
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, NewRetentionCleanupError("sweep cancelled", err)
		}

		result.Scanned++
		if job.EndTime == nil || !job.EndTime.Before(cutoff) {
			continue
		}

		if s.jobs.InUse(job.ID) {
			result.Skipped++
			s.logger.Debugf("Backup %s is in use by a restore, skipping", job.ID)
			continue
		}

		if err := s.deleteBackup(job); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", job.ID, err))
			s.logger.Warnf("Failed to sweep backup %s: %v", job.ID, err)
			continue
		}
		result.Deleted++
	}

	s.logger.LogRetentionSweep(result.Scanned, result.Deleted, result.Skipped, result.Failed, time.Since(start))
	return result, nil
}

// deleteBackup removes the backup files first, then the job record. If the
// record deletion fails the next sweep finds the job again, sees no files,
// and retries the record removal.
func (s *Sweeper) deleteBackup(job *Job) error {
	if job.StoragePath != "" && fsys.Exists(job.StoragePath) {
		if err := fsys.RemoveAll(job.StoragePath); err != nil {
			return NewRetentionCleanupError("failed to delete backup files", err)
		}
	}
	if err := s.jobs.DeleteJob(job.ID); err != nil && !IsNotFoundError(err) {
		return NewRetentionCleanupError("failed to delete job record", err)
	}
	return nil
}
