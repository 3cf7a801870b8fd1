// Package datastore defines the relational data-access capability the backup
// engine consumes. Table access always goes through a static registry of
// table specs resolved at startup; there is no string-keyed dynamic dispatch
// into the underlying store.
package datastore

import (
	"context"
	"time"
)

// Row is a single record keyed by column name.
type Row map[string]interface{}

// Filter narrows FindMany, Count and DeleteMany operations. A zero Filter
// matches every row.
type Filter struct {
	// Equals holds column = value terms, all of which must match.
	Equals map[string]interface{}

	// ModifiedAfter keeps only rows whose ModifiedColumn value is strictly
	// later than this instant.
	ModifiedAfter  *time.Time
	ModifiedColumn string
}

// IsEmpty reports whether the filter matches all rows.
func (f Filter) IsEmpty() bool {
	return len(f.Equals) == 0 && f.ModifiedAfter == nil
}

// ColumnSchema describes a single column of an introspected table.
type ColumnSchema struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// TableSchema describes an introspected table.
type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// Store is the data-access capability consumed by the exporters and the
// table restorer. Implementations own their own timeouts; the engine never
// cancels a running call.
type Store interface {
	FindMany(ctx context.Context, table string, filter Filter) ([]Row, error)
	Count(ctx context.Context, table string, filter Filter) (int64, error)
	CreateMany(ctx context.Context, table string, rows []Row, skipDuplicates bool) (int64, error)
	DeleteMany(ctx context.Context, table string, filter Filter) (int64, error)
	IntrospectSchema(ctx context.Context) ([]TableSchema, error)
}
