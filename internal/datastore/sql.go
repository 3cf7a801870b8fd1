package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLStore implements Store over a MySQL database. Table names are resolved
// through the registry, never interpolated from caller input.
type SQLStore struct {
	db       *sql.DB
	registry *Registry
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB, registry *Registry) *SQLStore {
	return &SQLStore{db: db, registry: registry}
}

// OpenSQLStore opens a MySQL connection from a DSN and wraps it.
func OpenSQLStore(dsn string, registry *Registry) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLStore(db, registry), nil
}

// Close closes the underlying database handle.
func (ss *SQLStore) Close() error {
	return ss.db.Close()
}

// FindMany returns all rows of table matching the filter.
func (ss *SQLStore) FindMany(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := ss.validate(table); err != nil {
		return nil, err
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf("SELECT * FROM `%s`%s", table, where)

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query on %s failed: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan on %s failed: %w", table, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = sqlValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration on %s failed: %w", table, err)
	}
	return out, nil
}

// Count returns the number of rows of table matching the filter.
func (ss *SQLStore) Count(ctx context.Context, table string, filter Filter) (int64, error) {
	if err := ss.validate(table); err != nil {
		return 0, err
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM `%s`%s", table, where)

	var count int64
	if err := ss.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count on %s failed: %w", table, err)
	}
	return count, nil
}

// CreateMany inserts rows into table in a single multi-value statement.
// With skipDuplicates, INSERT IGNORE drops rows colliding on a unique key.
func (ss *SQLStore) CreateMany(ctx context.Context, table string, rows []Row, skipDuplicates bool) (int64, error) {
	if err := ss.validate(table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	columns := rowColumns(rows)
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "`" + col + "`"
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		placeholders[i] = placeholder
		for _, col := range columns {
			args = append(args, row[col])
		}
	}

	verb := "INSERT"
	if skipDuplicates {
		verb = "INSERT IGNORE"
	}
	query := fmt.Sprintf("%s INTO `%s` (%s) VALUES %s",
		verb, table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	result, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s failed: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// DeleteMany removes all rows of table matching the filter. An empty filter
// deletes every row.
func (ss *SQLStore) DeleteMany(ctx context.Context, table string, filter Filter) (int64, error) {
	if err := ss.validate(table); err != nil {
		return 0, err
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf("DELETE FROM `%s`%s", table, where)

	result, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s failed: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// IntrospectSchema reads column metadata for every registered table from
// information_schema.
func (ss *SQLStore) IntrospectSchema(ctx context.Context) ([]TableSchema, error) {
	names := ss.registry.Names()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}

	query := fmt.Sprintf(`SELECT table_name, column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name IN (%s)
		ORDER BY table_name, ordinal_position`, placeholders)

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schema introspection failed: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string]*TableSchema)
	var order []string
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		var columnDefault sql.NullString
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &columnDefault); err != nil {
			return nil, fmt.Errorf("schema introspection scan failed: %w", err)
		}

		schema, ok := byTable[tableName]
		if !ok {
			schema = &TableSchema{Name: tableName}
			byTable[tableName] = schema
			order = append(order, tableName)
		}

		column := ColumnSchema{
			Name:     columnName,
			Type:     dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
		}
		if columnDefault.Valid {
			def := columnDefault.String
			column.Default = &def
		}
		schema.Columns = append(schema.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema introspection iteration failed: %w", err)
	}

	schemas := make([]TableSchema, 0, len(order))
	for _, name := range order {
		schemas = append(schemas, *byTable[name])
	}
	return schemas, nil
}

func (ss *SQLStore) validate(table string) error {
	if _, ok := ss.registry.Lookup(table); !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	return nil
}

func buildWhere(filter Filter) (string, []interface{}) {
	var terms []string
	var args []interface{}

	columns := make([]string, 0, len(filter.Equals))
	for col := range filter.Equals {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	for _, col := range columns {
		terms = append(terms, fmt.Sprintf("`%s` = ?", col))
		args = append(args, filter.Equals[col])
	}

	if filter.ModifiedAfter != nil {
		terms = append(terms, fmt.Sprintf("`%s` > ?", filter.ModifiedColumn))
		args = append(args, filter.ModifiedAfter.UTC())
	}

	if len(terms) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(terms, " AND "), args
}

func sqlValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func rowColumns(rows []Row) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			seen[col] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
