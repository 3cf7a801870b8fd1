package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
)

// dataDir is the subdirectory of a backup holding table exports.
const dataDir = "database"

// DataExporter serializes table rows into a backup directory. Tables are
// processed one at a time to bound peak memory; a per-table failure becomes
// a warning keyed by table name and never halts the remaining tables.
type DataExporter struct {
	store      datastore.Store
	registry   *datastore.Registry
	compressor *Compressor
	encryptor  *Encryptor
	logger     *logging.Logger
}

// NewDataExporter creates a data exporter.
func NewDataExporter(store datastore.Store, registry *datastore.Registry, compressor *Compressor, encryptor *Encryptor, logger *logging.Logger) *DataExporter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &DataExporter{
		store:      store,
		registry:   registry,
		compressor: compressor,
		encryptor:  encryptor,
		logger:     logger,
	}
}

// ExportFull exports every row of every registered table. An empty table
// still produces a file with an explicit empty collection.
func (de *DataExporter) ExportFull(ctx context.Context, backupID, backupDir string) (tables []string, warnings []string) {
	for _, spec := range de.registry.FullSet() {
		start := time.Now()
		rows, err := de.store.FindMany(ctx, spec.Name, datastore.Filter{})
		if err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, 0, time.Since(start), err)
			continue
		}

		if err := de.writeTable(backupDir, tableFilename(spec.Name, JobTypeFull), rows); err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), err)
			continue
		}

		tables = append(tables, spec.Name)
		de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), nil)
	}
	return tables, warnings
}

// ExportIncremental exports rows of the incremental table set whose
// modification timestamp is strictly later than cutoff. A table with no
// matching rows produces no file.
func (de *DataExporter) ExportIncremental(ctx context.Context, backupID, backupDir string, cutoff time.Time) (tables []string, warnings []string) {
	for _, spec := range de.registry.IncrementalSet() {
		start := time.Now()
		filter := datastore.Filter{
			ModifiedAfter:  &cutoff,
			ModifiedColumn: spec.ModifiedColumn,
		}
		rows, err := de.store.FindMany(ctx, spec.Name, filter)
		if err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, 0, time.Since(start), err)
			continue
		}

		// Sparse by design: unchanged tables leave no file behind.
		if len(rows) == 0 {
			de.logger.Debugf("Table %s unchanged since %s, skipping", spec.Name, cutoff.Format(time.RFC3339))
			continue
		}

		if err := de.writeTable(backupDir, tableFilename(spec.Name, JobTypeIncremental), rows); err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), err)
			continue
		}

		tables = append(tables, spec.Name)
		de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), nil)
	}
	return tables, warnings
}

// ExportTenant exports the tenant-scoped table set with every query
// filtered by the tenant identifier. Rows outside the tenant never appear
// in the output.
func (de *DataExporter) ExportTenant(ctx context.Context, backupID, backupDir, tenantID string) (tables []string, warnings []string) {
	for _, spec := range de.registry.TenantSet() {
		start := time.Now()
		filter := datastore.Filter{
			Equals: map[string]interface{}{spec.TenantColumn: tenantID},
		}
		rows, err := de.store.FindMany(ctx, spec.Name, filter)
		if err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, 0, time.Since(start), err)
			continue
		}

		if err := de.writeTable(backupDir, tableFilename(spec.Name, JobTypeTenant), rows); err != nil {
			warnings = append(warnings, exportWarning(spec.Name, err))
			de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), err)
			continue
		}

		tables = append(tables, spec.Name)
		de.logger.LogTableExport(backupID, spec.Name, len(rows), time.Since(start), nil)
	}
	return tables, warnings
}

// writeTable serializes rows and writes them through the compression and
// encryption pipeline. A nil row set is written as an explicit empty array.
func (de *DataExporter) writeTable(backupDir, filename string, rows []datastore.Row) error {
	if rows == nil {
		rows = []datastore.Row{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return NewStorageError("failed to serialize rows", err)
	}

	data, err = de.compressor.Compress(data)
	if err != nil {
		return err
	}
	data, err = de.encryptor.Encrypt(data)
	if err != nil {
		return err
	}

	path := filepath.Join(backupDir, dataDir, filename+de.compressor.Algorithm().Ext())
	return fsys.WriteFile(path, data)
}

// ReadTable reverses writeTable for a stored table file.
func (de *DataExporter) ReadTable(path string) ([]datastore.Row, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, NewStorageError("failed to read table export", err)
	}

	data, err = de.encryptor.Decrypt(data)
	if err != nil {
		return nil, err
	}
	data, err = de.compressor.Decompress(data)
	if err != nil {
		return nil, err
	}

	var rows []datastore.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, NewValidationError("failed to unmarshal table export", err)
	}
	return rows, nil
}

// tableFilename returns the export file name for a table under the given
// backup type, without the compression suffix.
func tableFilename(table string, jobType JobType) string {
	switch jobType {
	case JobTypeIncremental:
		return table + "_incremental.json"
	case JobTypeTenant:
		return table + "_tenant.json"
	default:
		return table + ".json"
	}
}

// tableFromFilename recovers the table name from an export file name,
// stripping compression suffixes and the type marker. The second return is
// false for files that are not table exports (e.g. schema.json).
func tableFromFilename(filename string, jobType JobType) (string, bool) {
	name := filepath.Base(filename)
	for _, ext := range []string{".gz", ".lz4", ".zst"} {
		name = strings.TrimSuffix(name, ext)
	}
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	name = strings.TrimSuffix(name, ".json")

	switch jobType {
	case JobTypeIncremental:
		if !strings.HasSuffix(name, "_incremental") {
			return "", false
		}
		return strings.TrimSuffix(name, "_incremental"), true
	case JobTypeTenant:
		if !strings.HasSuffix(name, "_tenant") {
			return "", false
		}
		return strings.TrimSuffix(name, "_tenant"), true
	default:
		if name == "schema" {
			return "", false
		}
		return name, true
	}
}

func exportWarning(table string, err error) string {
	return fmt.Sprintf("%s: %v", table, err)
}
