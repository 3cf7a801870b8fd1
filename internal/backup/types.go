package backup

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orchestrall-backup/internal/fsys"
)

// JobType identifies the scope of a backup job.
type JobType string

const (
	JobTypeFull        JobType = "full"
	JobTypeIncremental JobType = "incremental"
	JobTypeTenant      JobType = "tenant"
)

// JobStatus is the lifecycle state shared by backup and restore jobs.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// CanTransitionTo reports whether moving from s to next is a legal lifecycle
// transition. Completed and failed are terminal.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobMetadata carries the variable parts of a backup job record.
type JobMetadata struct {
	TenantID    string     `json:"tenant_id,omitempty"`
	CutoffTime  *time.Time `json:"cutoff_time,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	Error       string     `json:"error,omitempty"`
	Compression string     `json:"compression,omitempty"`
	Encrypted   bool       `json:"encrypted,omitempty"`
	Tables      []string   `json:"tables,omitempty"`
}

// Job is a persisted backup job record. It is owned exclusively by the
// orchestrator while running and immutable once terminal, except for
// deletion by the retention sweeper.
type Job struct {
	ID          string      `json:"id"`
	Type        JobType     `json:"type"`
	Status      JobStatus   `json:"status"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	SizeBytes   int64       `json:"size_bytes"`
	StoragePath string      `json:"storage_path"`
	Metadata    JobMetadata `json:"metadata"`
}

// Validate checks the structural invariants of a job record.
func (j *Job) Validate() error {
	if j.ID == "" {
		return NewValidationError("job ID is required", nil)
	}
	switch j.Type {
	case JobTypeFull, JobTypeIncremental, JobTypeTenant:
	default:
		return NewValidationError(fmt.Sprintf("invalid job type: %s", j.Type), nil)
	}
	switch j.Status {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
	default:
		return NewValidationError(fmt.Sprintf("invalid job status: %s", j.Status), nil)
	}
	if j.Type == JobTypeTenant && j.Metadata.TenantID == "" {
		return NewValidationError("tenant backup requires a tenant ID", nil)
	}
	return nil
}

// ToJSON serializes the job record.
func (j *Job) ToJSON() ([]byte, error) {
	return json.MarshalIndent(j, "", "  ")
}

// FromJSON deserializes and validates a job record.
func (j *Job) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, j); err != nil {
		return NewValidationError("failed to unmarshal job JSON", err)
	}
	return j.Validate()
}

// RestoreOptions selects what a restore run covers.
type RestoreOptions struct {
	ClearExisting        bool `json:"clear_existing"`
	RestoreApplication   bool `json:"restore_application"`
	RestoreConfiguration bool `json:"restore_configuration"`
}

// RestoreJob is a persisted restore job record. It references exactly one
// backup job and never mutates it.
type RestoreJob struct {
	ID             string         `json:"id"`
	BackupID       string         `json:"backup_id"`
	Status         JobStatus      `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Options        RestoreOptions `json:"options"`
	RestoredTables []string       `json:"restored_tables,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// ToJSON serializes the restore job record.
func (r *RestoreJob) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON deserializes a restore job record.
func (r *RestoreJob) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, r); err != nil {
		return NewValidationError("failed to unmarshal restore job JSON", err)
	}
	return nil
}

// ManifestVersion is the current manifest document version.
const ManifestVersion = "1.0"

// ManifestFilename is the manifest's name inside a backup directory.
const ManifestFilename = "manifest.json"

// Manifest lists every file of a completed backup with its size, modified
// time, and SHA-256 digest. Written once, never mutated.
type Manifest struct {
	ID        string            `json:"id"`
	Type      JobType           `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Files     []fsys.FileInfo   `json:"files"`
	Checksums map[string]string `json:"checksums"`
}

// ToJSON serializes the manifest.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON deserializes a manifest.
func (m *Manifest) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return NewValidationError("failed to unmarshal manifest JSON", err)
	}
	return nil
}

// GenerateJobID generates a unique, sortable job ID with the given prefix.
func GenerateJobID(prefix string) string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	short := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, timestamp, short)
}

// JobFilter narrows job listings.
type JobFilter struct {
	Type          JobType
	Status        JobStatus
	TenantID      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Matches reports whether a job satisfies the filter.
func (f JobFilter) Matches(job *Job) bool {
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.TenantID != "" && job.Metadata.TenantID != f.TenantID {
		return false
	}
	if f.CreatedAfter != nil && !job.StartTime.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !job.StartTime.Before(*f.CreatedBefore) {
		return false
	}
	return true
}
