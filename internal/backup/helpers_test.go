package backup

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/logging"
)

// testLogger returns a logger that swallows all output.
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: io.Discard,
	})
	require.NoError(t, err)
	return logger
}

// testEngine bundles a fully wired engine over an in-memory store and a
// temporary base path.
type testEngine struct {
	store    *datastore.MemoryStore
	registry *datastore.Registry
	jobs     *JobStore
	orch     *Orchestrator
	restorer *Restorer
	data     *DataExporter
	verifier *IntegrityVerifier
	basePath string
}

type engineOptions struct {
	compression CompressionType
	passphrase  string
}

func newTestEngine(t *testing.T, opts engineOptions) *testEngine {
	t.Helper()
	logger := testLogger(t)

	registry, err := datastore.NewRegistry(datastore.DefaultSpecs())
	require.NoError(t, err)
	store := datastore.NewMemoryStore(registry)

	basePath := t.TempDir()
	jobs, err := NewJobStore(basePath)
	require.NoError(t, err)

	compressor, err := NewCompressor(opts.compression)
	require.NoError(t, err)
	encryptor, err := NewEncryptor(opts.passphrase != "", opts.passphrase)
	require.NoError(t, err)

	schema := NewSchemaExporter(store, logger)
	data := NewDataExporter(store, registry, compressor, encryptor, logger)
	manifest := NewManifestBuilder(logger)
	verifier := NewIntegrityVerifier(logger)

	orchOpts := OrchestratorOptions{BasePath: basePath}
	orch, err := NewOrchestrator(orchOpts, jobs, schema, data, manifest, nil, logger)
	require.NoError(t, err)

	return &testEngine{
		store:    store,
		registry: registry,
		jobs:     jobs,
		orch:     orch,
		restorer: NewRestorer(orchOpts, store, registry, jobs, verifier, schema, data, logger),
		data:     data,
		verifier: verifier,
		basePath: basePath,
	}
}

// row builds a datastore.Row from alternating keys and values.
func row(kv ...interface{}) datastore.Row {
	r := make(datastore.Row, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}

// seedDataset inserts a small two-tenant dataset.
func (e *testEngine) seedDataset(modified time.Time) {
	e.store.Insert("organizations",
		datastore.Row{"id": 1, "name": "Acme Farms", "updated_at": modified},
		datastore.Row{"id": 2, "name": "Volta Growers", "updated_at": modified},
	)
	e.store.Insert("users",
		datastore.Row{"id": 1, "organization_id": "1", "email": "ama@acme.test", "updated_at": modified},
		datastore.Row{"id": 2, "organization_id": "2", "email": "kofi@volta.test", "updated_at": modified},
	)
	e.store.Insert("farmers",
		datastore.Row{"id": 1, "organization_id": "1", "name": "Ama", "updated_at": modified},
		datastore.Row{"id": 2, "organization_id": "1", "name": "Esi", "updated_at": modified},
		datastore.Row{"id": 3, "organization_id": "2", "name": "Kwame", "updated_at": modified},
	)
}
