package datastore

import (
	"fmt"
	"sort"
)

// TableSpec is the static description of one backed-up table: its identity
// columns and which backup scopes include it.
type TableSpec struct {
	// Name is the table identifier in the underlying store.
	Name string `json:"name"`

	// KeyColumn is the primary key column used for duplicate detection
	// during restore.
	KeyColumn string `json:"key_column"`

	// TenantColumn scopes rows to a tenant. Empty for global tables.
	TenantColumn string `json:"tenant_column,omitempty"`

	// ModifiedColumn carries the row modification timestamp used for
	// incremental cutoffs.
	ModifiedColumn string `json:"modified_column"`

	// Incremental marks tables included in incremental backups.
	Incremental bool `json:"incremental"`
}

// Tenanted reports whether the table carries a tenant identifier.
func (ts TableSpec) Tenanted() bool {
	return ts.TenantColumn != ""
}

// Registry is the fixed table set the engine operates on, resolved once at
// startup.
type Registry struct {
	specs map[string]TableSpec
	order []string
}

// NewRegistry builds a registry from the given specs.
func NewRegistry(specs []TableSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("table registry requires at least one table spec")
	}

	r := &Registry{specs: make(map[string]TableSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("table spec with empty name")
		}
		if spec.KeyColumn == "" {
			return nil, fmt.Errorf("table %s: key column is required", spec.Name)
		}
		if spec.Incremental && spec.ModifiedColumn == "" {
			return nil, fmt.Errorf("table %s: incremental tables require a modified column", spec.Name)
		}
		if _, exists := r.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate table spec: %s", spec.Name)
		}
		r.specs[spec.Name] = spec
		r.order = append(r.order, spec.Name)
	}

	return r, nil
}

// DefaultSpecs returns the platform's standard table set.
func DefaultSpecs() []TableSpec {
	return []TableSpec{
		{Name: "organizations", KeyColumn: "id", ModifiedColumn: "updated_at"},
		{Name: "users", KeyColumn: "id", TenantColumn: "organization_id", ModifiedColumn: "updated_at", Incremental: true},
		{Name: "farmers", KeyColumn: "id", TenantColumn: "organization_id", ModifiedColumn: "updated_at", Incremental: true},
		{Name: "crops", KeyColumn: "id", TenantColumn: "organization_id", ModifiedColumn: "updated_at", Incremental: true},
		{Name: "harvests", KeyColumn: "id", TenantColumn: "organization_id", ModifiedColumn: "updated_at", Incremental: true},
		{Name: "payments", KeyColumn: "id", TenantColumn: "organization_id", ModifiedColumn: "updated_at", Incremental: true},
	}
}

// Lookup returns the spec for a table name.
func (r *Registry) Lookup(name string) (TableSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// FullSet returns every registered table, in registration order.
func (r *Registry) FullSet() []TableSpec {
	return r.collect(func(TableSpec) bool { return true })
}

// IncrementalSet returns the tables included in incremental backups.
func (r *Registry) IncrementalSet() []TableSpec {
	return r.collect(func(ts TableSpec) bool { return ts.Incremental })
}

// TenantSet returns the tenant-scoped tables.
func (r *Registry) TenantSet() []TableSpec {
	return r.collect(func(ts TableSpec) bool { return ts.Tenanted() })
}

// Names returns all registered table names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) collect(keep func(TableSpec) bool) []TableSpec {
	var out []TableSpec
	for _, name := range r.order {
		if spec := r.specs[name]; keep(spec) {
			out = append(out, spec)
		}
	}
	return out
}
