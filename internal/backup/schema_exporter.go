package backup

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
)

// SchemaFilename is the schema document's path inside a backup directory.
const SchemaFilename = "database/schema.json"

// SchemaDocument is the normalized schema snapshot written into full
// backups.
type SchemaDocument struct {
	ExportedAt time.Time               `json:"exported_at"`
	Tables     []datastore.TableSchema `json:"tables"`
}

// SchemaExporter snapshots table and column metadata through the DataStore
// capability. Schema export is required for full backups only; incremental
// and tenant backups skip it.
type SchemaExporter struct {
	store  datastore.Store
	logger *logging.Logger
}

// NewSchemaExporter creates a schema exporter.
func NewSchemaExporter(store datastore.Store, logger *logging.Logger) *SchemaExporter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SchemaExporter{store: store, logger: logger}
}

// Export introspects the schema and writes database/schema.json under
// backupDir.
func (se *SchemaExporter) Export(ctx context.Context, backupDir string) error {
	tables, err := se.store.IntrospectSchema(ctx)
	if err != nil {
		return err
	}

	doc := SchemaDocument{
		ExportedAt: time.Now().UTC(),
		Tables:     tables,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return NewStorageError("failed to serialize schema document", err)
	}

	if err := fsys.WriteFile(filepath.Join(backupDir, filepath.FromSlash(SchemaFilename)), data); err != nil {
		return NewStorageError("failed to write schema document", err)
	}

	se.logger.Debugf("Schema exported: %d tables", len(tables))
	return nil
}

// Load reads a previously exported schema document from backupDir. Returns
// nil without error when the backup carries no schema snapshot.
func (se *SchemaExporter) Load(backupDir string) (*SchemaDocument, error) {
	path := filepath.Join(backupDir, filepath.FromSlash(SchemaFilename))
	if !fsys.Exists(path) {
		return nil, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, NewStorageError("failed to read schema document", err)
	}

	var doc SchemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewValidationError("failed to unmarshal schema document", err)
	}
	return &doc, nil
}
