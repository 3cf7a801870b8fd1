package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrall-backup/internal/fsys"
)

func TestCreateFullBackupLifecycle(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	job, err := e.orch.CreateFullBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, JobTypeFull, job.Type)
	require.NotNil(t, job.EndTime)
	assert.Greater(t, job.SizeBytes, int64(0))
	assert.Empty(t, job.Metadata.Warnings)
	assert.Len(t, job.Metadata.Tables, 6)

	// The persisted record matches the returned one.
	persisted, err := e.jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, persisted.Status)

	// Schema snapshot, table exports, and manifest all exist.
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "database", "schema.json")))
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "database", "farmers.json")))
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, ManifestFilename)))

	// A completed backup always verifies clean.
	_, err = e.verifier.Verify(job.StoragePath)
	assert.NoError(t, err)
}

func TestCreateFullBackupSchemaFailureIsFatal(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())
	// IntrospectSchema touches every table, so failing one fails the export.
	e.store.FailTable("organizations", errors.New("connection reset"))

	_, err := e.orch.CreateFullBackup(context.Background())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeFatalExport))

	jobs, err := e.jobs.ListJobs(JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].EndTime)
	assert.Contains(t, jobs[0].Metadata.Error, "schema export failed")
}

func TestBackupTableFailureIsWarning(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	// Tenant backups skip the schema pass, so the injected failure only
	// hits the data export and must degrade to a warning.
	e.store.FailTable("crops", errors.New("lock wait timeout"))

	job, err := e.orch.CreateTenantBackup(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, JobStatusCompleted, job.Status)
	require.Len(t, job.Metadata.Warnings, 1)
	assert.Contains(t, job.Metadata.Warnings[0], "crops")
	assert.NotContains(t, job.Metadata.Tables, "crops")
}

func TestCreateIncrementalBackupCutoff(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	past := time.Now().UTC().Add(-2 * time.Hour)
	e.seedDataset(past)

	full, err := e.orch.CreateFullBackup(context.Background())
	require.NoError(t, err)

	// One row modified after the full backup completed.
	e.store.Insert("farmers", row("id", 9, "organization_id", "1", "name", "Yaw",
		"updated_at", time.Now().UTC().Add(time.Hour)))

	inc, err := e.orch.CreateIncrementalBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobStatusCompleted, inc.Status)
	require.NotNil(t, inc.Metadata.CutoffTime)
	assert.True(t, inc.Metadata.CutoffTime.Equal(full.EndTime.UTC()))
	assert.Empty(t, inc.Metadata.Warnings)
	assert.Equal(t, []string{"farmers"}, inc.Metadata.Tables)

	rows, err := e.data.ReadTable(filepath.Join(inc.StoragePath, "database", "farmers_incremental.json"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Yaw", rows[0]["name"])
}

func TestCreateIncrementalBackupWithoutPriorBackup(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	job, err := e.orch.CreateIncrementalBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.Metadata.CutoffTime)
	assert.True(t, job.Metadata.CutoffTime.IsZero())
	require.NotEmpty(t, job.Metadata.Warnings)
	assert.Contains(t, job.Metadata.Warnings[0], "no completed full or incremental backup")
	// With an epoch cutoff every modified row is included.
	assert.Contains(t, job.Metadata.Tables, "farmers")
}

func TestCreateTenantBackupRequiresTenantID(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})

	_, err := e.orch.CreateTenantBackup(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateTenantBackupMetadata(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionGzip})
	e.seedDataset(time.Now().UTC())

	job, err := e.orch.CreateTenantBackup(context.Background(), "2")
	require.NoError(t, err)

	assert.Equal(t, "2", job.Metadata.TenantID)
	assert.Equal(t, "gzip", job.Metadata.Compression)
	assert.False(t, job.Metadata.Encrypted)
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "database", "farmers_tenant.json.gz")))
	// Tenant backups carry no schema snapshot.
	assert.False(t, fsys.Exists(filepath.Join(job.StoragePath, "database", "schema.json")))
}

func TestBackupDirectoryLayout(t *testing.T) {
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	job, err := e.orch.CreateFullBackup(context.Background())
	require.NoError(t, err)

	rel, err := filepath.Rel(e.basePath, job.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "full", filepath.Dir(rel))
	assert.Contains(t, filepath.Base(rel), job.ID+"_full_")
}

func TestFullBackupCopiesArtifactDirs(t *testing.T) {
	logger := testLogger(t)
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	appDir := t.TempDir()
	cfgDir := t.TempDir()
	require.NoError(t, fsys.WriteFile(filepath.Join(appDir, "app.bin"), []byte("binary")))
	require.NoError(t, fsys.WriteFile(filepath.Join(cfgDir, "settings.yaml"), []byte("a: 1")))

	opts := OrchestratorOptions{
		BasePath:         e.basePath,
		ApplicationDir:   appDir,
		ConfigurationDir: cfgDir,
	}
	orch, err := NewOrchestrator(opts, e.jobs, NewSchemaExporter(e.store, logger), e.data, NewManifestBuilder(logger), nil, logger)
	require.NoError(t, err)

	job, err := orch.CreateFullBackup(context.Background())
	require.NoError(t, err)

	assert.Empty(t, job.Metadata.Warnings)
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "application", "app.bin")))
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "configuration", "settings.yaml")))
}

func TestFullBackupIncludesDotfiles(t *testing.T) {
	logger := testLogger(t)
	e := newTestEngine(t, engineOptions{compression: CompressionNone})
	e.seedDataset(time.Now().UTC())

	appDir := t.TempDir()
	require.NoError(t, fsys.WriteFile(filepath.Join(appDir, "app.bin"), []byte("binary")))
	require.NoError(t, fsys.WriteFile(filepath.Join(appDir, ".env"), []byte("APP_KEY=x")))
	require.NoError(t, fsys.WriteFile(filepath.Join(appDir, ".htaccess"), []byte("Deny from all")))

	opts := OrchestratorOptions{BasePath: e.basePath, ApplicationDir: appDir}
	orch, err := NewOrchestrator(opts, e.jobs, NewSchemaExporter(e.store, logger), e.data, NewManifestBuilder(logger), nil, logger)
	require.NoError(t, err)

	job, err := orch.CreateFullBackup(context.Background())
	require.NoError(t, err)

	assert.Empty(t, job.Metadata.Warnings)
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "application", ".env")))
	assert.True(t, fsys.Exists(filepath.Join(job.StoragePath, "application", ".htaccess")))

	// The manifest covers the dotfiles like any other file.
	manifest, err := e.verifier.Verify(job.StoragePath)
	require.NoError(t, err)
	assert.Contains(t, manifest.Checksums, "application/.env")
	assert.Contains(t, manifest.Checksums, "application/.htaccess")
}
