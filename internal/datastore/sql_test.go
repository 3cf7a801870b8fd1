package datastore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(db, testRegistry(t)), mock
}

func TestSQLStoreFindMany(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `farmers` WHERE `organization_id` = ?")).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name"}).
			AddRow(1, "org-1", []byte("Ama")).
			AddRow(2, "org-1", []byte("Esi")))

	rows, err := store.FindMany(context.Background(), "farmers", Filter{
		Equals: map[string]interface{}{"organization_id": "org-1"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// []byte column values come back as strings.
	assert.Equal(t, "Ama", rows[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFindManyModifiedAfter(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `crops` WHERE `updated_at` > ?")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	rows, err := store.FindMany(context.Background(), "crops", Filter{
		ModifiedAfter:  &cutoff,
		ModifiedColumn: "updated_at",
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateManyInsertIgnore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO `users` (`email`, `id`) VALUES (?,?), (?,?)")).
		WithArgs("a@example.com", 1, "b@example.com", 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	inserted, err := store.CreateMany(context.Background(), "users", []Row{
		{"id": 1, "email": "a@example.com"},
		{"id": 2, "email": "b@example.com"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateManyPlainInsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users` (`id`) VALUES (?)")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := store.CreateMany(context.Background(), "users", []Row{{"id": 5}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateManyEmpty(t *testing.T) {
	store, _ := newMockStore(t)

	inserted, err := store.CreateMany(context.Background(), "users", nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
}

func TestSQLStoreDeleteMany(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `payments` WHERE `organization_id` = ?")).
		WithArgs("org-9").
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := store.DeleteMany(context.Background(), "payments", Filter{
		Equals: map[string]interface{}{"organization_id": "org-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDeleteManyEmptyFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `payments`")).
		WillReturnResult(sqlmock.NewResult(0, 10))

	deleted, err := store.DeleteMany(context.Background(), "payments", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRejectsUnknownTable(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.FindMany(context.Background(), "users; DROP TABLE users", Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestSQLStoreIntrospectSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT table_name, column_name, data_type, is_nullable, column_default").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("crops", "id", "int", "NO", nil).
			AddRow("crops", "name", "varchar", "YES", "unnamed").
			AddRow("users", "id", "int", "NO", nil))

	schemas, err := store.IntrospectSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	assert.Equal(t, "crops", schemas[0].Name)
	require.Len(t, schemas[0].Columns, 2)
	assert.False(t, schemas[0].Columns[0].Nullable)
	assert.True(t, schemas[0].Columns[1].Nullable)
	require.NotNil(t, schemas[0].Columns[1].Default)
	assert.Equal(t, "unnamed", *schemas[0].Columns[1].Default)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   Filter
		want     string
		wantArgs int
	}{
		{"empty", Filter{}, "", 0},
		{
			"equals sorted",
			Filter{Equals: map[string]interface{}{"b": 2, "a": 1}},
			" WHERE `a` = ? AND `b` = ?",
			2,
		},
		{
			"modified after",
			Filter{ModifiedAfter: &cutoff, ModifiedColumn: "updated_at"},
			" WHERE `updated_at` > ?",
			1,
		},
		{
			"combined",
			Filter{
				Equals:         map[string]interface{}{"organization_id": "org-1"},
				ModifiedAfter:  &cutoff,
				ModifiedColumn: "updated_at",
			},
			" WHERE `organization_id` = ? AND `updated_at` > ?",
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(tt.filter)
			assert.Equal(t, tt.want, where)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}
