package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(DefaultSpecs())
	require.NoError(t, err)
	return registry
}

func TestMemoryStoreFindManyEquals(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	store.Insert("farmers",
		Row{"id": 1, "organization_id": "org-1", "name": "Ama"},
		Row{"id": 2, "organization_id": "org-2", "name": "Kofi"},
		Row{"id": 3, "organization_id": "org-1", "name": "Esi"},
	)

	rows, err := store.FindMany(context.Background(), "farmers", Filter{
		Equals: map[string]interface{}{"organization_id": "org-1"},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMemoryStoreFindManyModifiedAfter(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(testRegistry(t))
	store.Insert("crops",
		Row{"id": 1, "updated_at": cutoff.Add(-time.Hour)},
		Row{"id": 2, "updated_at": cutoff.Add(time.Hour)},
		Row{"id": 3, "updated_at": cutoff}, // boundary rows are excluded
	)

	rows, err := store.FindMany(context.Background(), "crops", Filter{
		ModifiedAfter:  &cutoff,
		ModifiedColumn: "updated_at",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0]["id"])
}

func TestMemoryStoreModifiedAfterStringTimestamps(t *testing.T) {
	// Rows decoded from a JSON export carry RFC 3339 strings, not time.Time.
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(testRegistry(t))
	store.Insert("crops",
		Row{"id": 1, "updated_at": "2026-08-15T10:00:00Z"},
		Row{"id": 2, "updated_at": "2026-07-15T10:00:00Z"},
	)

	rows, err := store.FindMany(context.Background(), "crops", Filter{
		ModifiedAfter:  &cutoff,
		ModifiedColumn: "updated_at",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0]["id"])
}

func TestMemoryStoreCreateManySkipDuplicates(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	store.Insert("users", Row{"id": 1, "email": "a@example.com"})

	inserted, err := store.CreateMany(context.Background(), "users", []Row{
		{"id": 1, "email": "a@example.com"},
		{"id": 2, "email": "b@example.com"},
		// JSON round trip turns ints into float64; duplicate detection must
		// still catch the collision.
		{"id": float64(2), "email": "b2@example.com"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	count, err := store.Count(context.Background(), "users", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStoreDeleteMany(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	store.Insert("payments",
		Row{"id": 1, "organization_id": "org-1"},
		Row{"id": 2, "organization_id": "org-2"},
		Row{"id": 3, "organization_id": "org-1"},
	)

	deleted, err := store.DeleteMany(context.Background(), "payments", Filter{
		Equals: map[string]interface{}{"organization_id": "org-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := store.Count(context.Background(), "payments", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Empty filter deletes everything.
	deleted, err = store.DeleteMany(context.Background(), "payments", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	boom := errors.New("disk on fire")
	store.FailTable("harvests", boom)

	_, err := store.FindMany(context.Background(), "harvests", Filter{})
	assert.ErrorIs(t, err, boom)

	store.FailTable("harvests", nil)
	_, err = store.FindMany(context.Background(), "harvests", Filter{})
	assert.NoError(t, err)
}

func TestMemoryStoreUnknownTable(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	_, err := store.FindMany(context.Background(), "no_such_table", Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestMemoryStoreIntrospectSchema(t *testing.T) {
	store := NewMemoryStore(testRegistry(t))
	store.Insert("organizations", Row{"id": 1, "name": "Acme Farms"})

	schemas, err := store.IntrospectSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 6)

	assert.Equal(t, "organizations", schemas[0].Name)
	require.Len(t, schemas[0].Columns, 2)
	assert.Equal(t, "id", schemas[0].Columns[0].Name)
	assert.False(t, schemas[0].Columns[0].Nullable)
}
