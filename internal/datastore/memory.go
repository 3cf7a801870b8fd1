package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store implementation. It backs
// unit tests and round-trip verification without a database server.
type MemoryStore struct {
	mu       sync.RWMutex
	registry *Registry
	tables   map[string][]Row

	// failures maps table names to injected errors, letting tests exercise
	// per-table export and restore failure handling.
	failures map[string]error
}

// NewMemoryStore creates an empty in-memory store over the given registry.
func NewMemoryStore(registry *Registry) *MemoryStore {
	return &MemoryStore{
		registry: registry,
		tables:   make(map[string][]Row),
		failures: make(map[string]error),
	}
}

// Insert seeds rows into a table without duplicate checking.
func (ms *MemoryStore) Insert(table string, rows ...Row) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.tables[table] = append(ms.tables[table], rows...)
}

// FailTable makes every subsequent operation on table return err. Passing a
// nil error clears the injection.
func (ms *MemoryStore) FailTable(table string, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err == nil {
		delete(ms.failures, table)
		return
	}
	ms.failures[table] = err
}

// FindMany returns all rows of table matching the filter.
func (ms *MemoryStore) FindMany(ctx context.Context, table string, filter Filter) ([]Row, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if err := ms.check(table); err != nil {
		return nil, err
	}

	var out []Row
	for _, row := range ms.tables[table] {
		if matchesFilter(row, filter) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

// Count returns the number of rows of table matching the filter.
func (ms *MemoryStore) Count(ctx context.Context, table string, filter Filter) (int64, error) {
	rows, err := ms.FindMany(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// CreateMany inserts rows into table. With skipDuplicates, rows whose key
// column value already exists are silently dropped.
func (ms *MemoryStore) CreateMany(ctx context.Context, table string, rows []Row, skipDuplicates bool) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(table); err != nil {
		return 0, err
	}

	spec, ok := ms.registry.Lookup(table)
	if !ok {
		return 0, fmt.Errorf("unknown table: %s", table)
	}

	existing := make(map[string]bool)
	if skipDuplicates {
		for _, row := range ms.tables[table] {
			existing[normalize(row[spec.KeyColumn])] = true
		}
	}

	var inserted int64
	for _, row := range rows {
		if skipDuplicates {
			key := normalize(row[spec.KeyColumn])
			if existing[key] {
				continue
			}
			existing[key] = true
		}
		ms.tables[table] = append(ms.tables[table], cloneRow(row))
		inserted++
	}
	return inserted, nil
}

// DeleteMany removes all rows of table matching the filter.
func (ms *MemoryStore) DeleteMany(ctx context.Context, table string, filter Filter) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(table); err != nil {
		return 0, err
	}

	var kept []Row
	var deleted int64
	for _, row := range ms.tables[table] {
		if matchesFilter(row, filter) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	ms.tables[table] = kept
	return deleted, nil
}

// IntrospectSchema derives a schema from the registry and the seeded rows.
func (ms *MemoryStore) IntrospectSchema(ctx context.Context) ([]TableSchema, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var schemas []TableSchema
	for _, spec := range ms.registry.FullSet() {
		if err := ms.check(spec.Name); err != nil {
			return nil, err
		}

		schema := TableSchema{Name: spec.Name}
		columns := make(map[string]bool)
		for _, row := range ms.tables[spec.Name] {
			for col := range row {
				columns[col] = true
			}
		}

		names := make([]string, 0, len(columns))
		for col := range columns {
			names = append(names, col)
		}
		sort.Strings(names)
		for _, col := range names {
			schema.Columns = append(schema.Columns, ColumnSchema{
				Name:     col,
				Type:     "text",
				Nullable: col != spec.KeyColumn,
			})
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

func (ms *MemoryStore) check(table string) error {
	if err, ok := ms.failures[table]; ok {
		return err
	}
	if _, ok := ms.registry.Lookup(table); !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	return nil
}

func matchesFilter(row Row, filter Filter) bool {
	for col, want := range filter.Equals {
		if normalize(row[col]) != normalize(want) {
			return false
		}
	}

	if filter.ModifiedAfter != nil {
		ts, ok := rowTime(row[filter.ModifiedColumn])
		if !ok || !ts.After(*filter.ModifiedAfter) {
			return false
		}
	}
	return true
}

// normalize maps a value to a comparable string so that values surviving a
// JSON round trip (ints becoming float64, times becoming RFC 3339 strings)
// still compare equal to their originals.
func normalize(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case float32:
		return normalize(float64(t))
	case int:
		return fmt.Sprintf("%d", t)
	case int32:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func rowTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
