package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"orchestrall-backup/internal/fsys"
)

// JobStore persists backup and restore job records as JSON files under the
// engine's base path. Records are written atomically; lifecycle transitions
// are enforced on save. It also carries the advisory in-use guard that keeps
// the retention sweeper away from backups currently being restored.
type JobStore struct {
	basePath string

	mu    sync.Mutex
	inUse map[string]int
}

// NewJobStore creates a job store rooted at basePath.
func NewJobStore(basePath string) (*JobStore, error) {
	if basePath == "" {
		return nil, NewValidationError("job store base path is required", nil)
	}

	store := &JobStore{
		basePath: basePath,
		inUse:    make(map[string]int),
	}

	for _, dir := range []string{store.jobsDir(), store.restoresDir()} {
		if err := fsys.MkdirAll(dir); err != nil {
			return nil, NewStorageError("failed to create job store directory", err)
		}
	}
	return store, nil
}

// SaveJob persists a backup job record. If a record with the same ID exists,
// the status change must be a legal lifecycle transition; terminal records
// are immutable.
func (js *JobStore) SaveJob(job *Job) error {
	if job == nil {
		return NewValidationError("job cannot be nil", nil)
	}
	if err := job.Validate(); err != nil {
		return err
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	if existing, err := js.loadJob(job.ID); err == nil {
		if existing.Status.Terminal() {
			return NewConflictError(fmt.Sprintf("job %s is %s and immutable", job.ID, existing.Status), nil)
		}
		if existing.Status != job.Status && !existing.Status.CanTransitionTo(job.Status) {
			return NewConflictError(fmt.Sprintf("illegal transition %s -> %s for job %s", existing.Status, job.Status, job.ID), nil)
		}
	}

	data, err := job.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize job record", err)
	}
	if err := fsys.WriteFileAtomic(js.jobPath(job.ID), data); err != nil {
		return NewStorageError("failed to write job record", err)
	}
	return nil
}

// GetJob loads a backup job record by ID.
func (js *JobStore) GetJob(id string) (*Job, error) {
	if id == "" {
		return nil, NewValidationError("backup ID is required", nil)
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	return js.loadJob(id)
}

// ListJobs returns all backup job records matching the filter, newest first.
func (js *JobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	entries, err := os.ReadDir(js.jobsDir())
	if err != nil {
		return nil, NewStorageError("failed to list job records", err)
	}

	var jobs []*Job
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := js.loadJob(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if filter.Matches(job) {
			jobs = append(jobs, job)
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.After(jobs[j].StartTime)
	})
	return jobs, nil
}

// LastCompletedBackup returns the most recently completed job among the
// given types, or nil when none exists. The incremental cutoff derives from
// its end time.
func (js *JobStore) LastCompletedBackup(types ...JobType) (*Job, error) {
	jobs, err := js.ListJobs(JobFilter{Status: JobStatusCompleted})
	if err != nil {
		return nil, err
	}

	var newest *Job
	for _, job := range jobs {
		match := false
		for _, t := range types {
			if job.Type == t {
				match = true
				break
			}
		}
		if !match || job.EndTime == nil {
			continue
		}
		if newest == nil || job.EndTime.After(*newest.EndTime) {
			newest = job
		}
	}
	return newest, nil
}

// DeleteJob removes a backup job record. The caller is responsible for the
// backing files.
func (js *JobStore) DeleteJob(id string) error {
	if id == "" {
		return NewValidationError("backup ID is required", nil)
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	path := js.jobPath(id)
	if !fsys.Exists(path) {
		return NewNotFoundError(fmt.Sprintf("backup %s not found", id), nil)
	}
	if err := os.Remove(path); err != nil {
		return NewStorageError("failed to delete job record", err)
	}
	return nil
}

// SaveRestoreJob persists a restore job record.
func (js *JobStore) SaveRestoreJob(job *RestoreJob) error {
	if job == nil {
		return NewValidationError("restore job cannot be nil", nil)
	}
	if job.ID == "" {
		return NewValidationError("restore job ID is required", nil)
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	if existing, err := js.loadRestoreJob(job.ID); err == nil {
		if existing.Status.Terminal() {
			return NewConflictError(fmt.Sprintf("restore job %s is %s and immutable", job.ID, existing.Status), nil)
		}
		if existing.Status != job.Status && !existing.Status.CanTransitionTo(job.Status) {
			return NewConflictError(fmt.Sprintf("illegal transition %s -> %s for restore job %s", existing.Status, job.Status, job.ID), nil)
		}
	}

	data, err := job.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize restore job record", err)
	}
	if err := fsys.WriteFileAtomic(js.restorePath(job.ID), data); err != nil {
		return NewStorageError("failed to write restore job record", err)
	}
	return nil
}

// GetRestoreJob loads a restore job record by ID.
func (js *JobStore) GetRestoreJob(id string) (*RestoreJob, error) {
	if id == "" {
		return nil, NewValidationError("restore job ID is required", nil)
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	return js.loadRestoreJob(id)
}

// ListRestoreJobs returns all restore job records, newest first.
func (js *JobStore) ListRestoreJobs() ([]*RestoreJob, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	entries, err := os.ReadDir(js.restoresDir())
	if err != nil {
		return nil, NewStorageError("failed to list restore job records", err)
	}

	var jobs []*RestoreJob
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := js.loadRestoreJob(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.After(jobs[j].StartTime)
	})
	return jobs, nil
}

// Advisory in-use guard. A restore acquires the backup for its duration;
// the retention sweeper refuses to delete an acquired backup.

// Acquire marks a backup as in use and returns a release function.
func (js *JobStore) Acquire(backupID string) func() {
	js.mu.Lock()
	js.inUse[backupID]++
	js.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			js.mu.Lock()
			defer js.mu.Unlock()
			if js.inUse[backupID] <= 1 {
				delete(js.inUse, backupID)
			} else {
				js.inUse[backupID]--
			}
		})
	}
}

// InUse reports whether a backup is currently acquired.
func (js *JobStore) InUse(backupID string) bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.inUse[backupID] > 0
}

// Internal helpers. Callers hold js.mu.

func (js *JobStore) loadJob(id string) (*Job, error) {
	path := js.jobPath(id)
	if !fsys.Exists(path) {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", id), nil)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, NewStorageError("failed to read job record", err)
	}

	var job Job
	if err := job.FromJSON(data); err != nil {
		return nil, err
	}
	return &job, nil
}

func (js *JobStore) loadRestoreJob(id string) (*RestoreJob, error) {
	path := js.restorePath(id)
	if !fsys.Exists(path) {
		return nil, NewNotFoundError(fmt.Sprintf("restore job %s not found", id), nil)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, NewStorageError("failed to read restore job record", err)
	}

	var job RestoreJob
	if err := job.FromJSON(data); err != nil {
		return nil, err
	}
	return &job, nil
}

func (js *JobStore) jobsDir() string {
	return filepath.Join(js.basePath, "jobs")
}

func (js *JobStore) restoresDir() string {
	return filepath.Join(js.basePath, "restores")
}

func (js *JobStore) jobPath(id string) string {
	return filepath.Join(js.jobsDir(), sanitizeID(id)+".json")
}

func (js *JobStore) restorePath(id string) string {
	return filepath.Join(js.restoresDir(), sanitizeID(id)+".json")
}

// sanitizeID strips path separators from IDs used as file names.
func sanitizeID(id string) string {
	sanitized := strings.ReplaceAll(id, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	sanitized = strings.ReplaceAll(sanitized, "..", "_")
	return sanitized
}
