package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusFailed, JobStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestJobValidate(t *testing.T) {
	valid := Job{
		ID:        "full-20260827-120000-a1b2c3d4",
		Type:      JobTypeFull,
		Status:    JobStatusPending,
		StartTime: time.Now(),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing ID", func(j *Job) { j.ID = "" }},
		{"bad type", func(j *Job) { j.Type = "differential" }},
		{"bad status", func(j *Job) { j.Status = "paused" }},
		{"tenant without tenant ID", func(j *Job) { j.Type = JobTypeTenant }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid
			tt.mutate(&job)
			err := job.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestJobJSONRoundTrip(t *testing.T) {
	end := time.Date(2026, 8, 27, 13, 0, 0, 0, time.UTC)
	job := Job{
		ID:        "tenant-20260827-120000-a1b2c3d4",
		Type:      JobTypeTenant,
		Status:    JobStatusCompleted,
		StartTime: end.Add(-time.Minute),
		EndTime:   &end,
		SizeBytes: 2048,
		Metadata: JobMetadata{
			TenantID: "org-42",
			Warnings: []string{"crops: timeout"},
			Tables:   []string{"users", "farmers"},
		},
	}

	data, err := job.ToJSON()
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, decoded.FromJSON(data))
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Metadata.TenantID, decoded.Metadata.TenantID)
	require.NotNil(t, decoded.EndTime)
	assert.True(t, decoded.EndTime.Equal(end))
}

func TestGenerateJobID(t *testing.T) {
	a := GenerateJobID("full")
	b := GenerateJobID("full")

	assert.True(t, strings.HasPrefix(a, "full-"))
	assert.NotEqual(t, a, b)
}

func TestJobFilterMatches(t *testing.T) {
	start := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	job := &Job{
		ID:        "x",
		Type:      JobTypeTenant,
		Status:    JobStatusCompleted,
		StartTime: start,
		Metadata:  JobMetadata{TenantID: "org-1"},
	}

	before := start.Add(-time.Hour)
	after := start.Add(time.Hour)

	assert.True(t, JobFilter{}.Matches(job))
	assert.True(t, JobFilter{Type: JobTypeTenant, Status: JobStatusCompleted, TenantID: "org-1"}.Matches(job))
	assert.False(t, JobFilter{Type: JobTypeFull}.Matches(job))
	assert.False(t, JobFilter{Status: JobStatusFailed}.Matches(job))
	assert.False(t, JobFilter{TenantID: "org-2"}.Matches(job))
	assert.True(t, JobFilter{CreatedAfter: &before, CreatedBefore: &after}.Matches(job))
	assert.False(t, JobFilter{CreatedAfter: &after}.Matches(job))
}
