package database

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is satisfied by both *sql.DB and *sql.Tx so entity operations can
// run inside or outside a transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// UnknownNameID is the reserved name row every unclassified annotation points
// at. It is created during InitDB and must always be row 1.
const UnknownNameID int64 = 1

// UnknownNameText is the sentinel label for subjects that have not been
// identified yet.
const UnknownNameText = "____"

// UnknownViewpoint marks annotations whose viewpoint was never set.
const UnknownViewpoint = "UNKNOWN"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS images (
		image_uuid       TEXT PRIMARY KEY,
		image_uri        TEXT NOT NULL,
		image_width      INTEGER,
		image_height     INTEGER,
		image_time_posix INTEGER,
		image_gps_lat    REAL,
		image_gps_lon    REAL
	);`,
	`CREATE TABLE IF NOT EXISTS names (
		name_uid  INTEGER PRIMARY KEY AUTOINCREMENT,
		name_text TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS annotations (
		annot_uuid      TEXT PRIMARY KEY,
		image_uuid      TEXT NOT NULL,
		name_uid        INTEGER NOT NULL DEFAULT 1,
		annot_xtl       INTEGER NOT NULL,
		annot_ytl       INTEGER NOT NULL,
		annot_width     INTEGER NOT NULL,
		annot_height    INTEGER NOT NULL,
		annot_theta     REAL NOT NULL DEFAULT 0.0,
		annot_viewpoint TEXT NOT NULL DEFAULT 'UNKNOWN'
	);`,
	`CREATE TABLE IF NOT EXISTS configs (
		config_uid    INTEGER PRIMARY KEY AUTOINCREMENT,
		config_suffix TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS chips (
		chip_uid    INTEGER PRIMARY KEY AUTOINCREMENT,
		annot_uuid  TEXT NOT NULL,
		config_uid  INTEGER NOT NULL,
		chip_width  INTEGER NOT NULL,
		chip_height INTEGER NOT NULL,
		UNIQUE(annot_uuid, config_uid)
	);`,
	`CREATE TABLE IF NOT EXISTS feature_sets (
		feature_uid     INTEGER PRIMARY KEY AUTOINCREMENT,
		chip_uid        INTEGER NOT NULL,
		config_uid      INTEGER NOT NULL,
		num_features    INTEGER NOT NULL,
		descriptor_dim  INTEGER NOT NULL,
		keypoint_data   BLOB,
		descriptor_data BLOB,
		UNIQUE(chip_uid, config_uid)
	);`,
}

// InitDB opens (or creates) the sqlite database, applies the schema and seeds
// the unknown-name sentinel.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable write-ahead logging for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("database: warning: failed to set WAL mode: %v", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := seedUnknownName(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("database: initialized successfully at", dataSourceName)
	return db, nil
}

// seedUnknownName inserts the sentinel name and verifies it holds the
// reserved row id. Relying on creation order alone would break silently on a
// database seeded by older code, so the invariant is checked every startup.
func seedUnknownName(db Querier) error {
	ids, err := AddNames(db, []string{UnknownNameText})
	if err != nil {
		return fmt.Errorf("failed to seed unknown name: %w", err)
	}
	if len(ids) != 1 || ids[0] != UnknownNameID {
		return fmt.Errorf("unknown name sentinel has uid %v, expected %d", ids, UnknownNameID)
	}
	return nil
}

// ListTables returns the user table names present in the live schema.
func ListTables(db Querier) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ListColumns returns the column names of a table, plus the name of its
// primary key column.
func ListColumns(db Querier, table string) (columns []string, pkColumn string, err error) {
	// PRAGMA does not accept bound parameters, so the name is checked
	// before it enters query text.
	if !identifierPattern.MatchString(table) {
		return nil, "", &UnsafeIdentifierError{Name: table}
	}
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, "", fmt.Errorf("failed to scan column info of %s: %w", table, err)
		}
		columns = append(columns, name)
		if pk == 1 {
			pkColumn = name
		}
	}
	return columns, pkColumn, rows.Err()
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// sanitizeIdentifiers validates a table name, and optionally a column name,
// against the live schema. This is the only gate through which identifiers
// may enter query text.
func sanitizeIdentifiers(db Querier, table, column string) (pkColumn string, err error) {
	if !identifierPattern.MatchString(table) {
		return "", &UnsafeIdentifierError{Name: table}
	}
	tables, err := ListTables(db)
	if err != nil {
		return "", err
	}
	found := false
	for _, t := range tables {
		if t == table {
			found = true
			break
		}
	}
	if !found {
		return "", &UnsafeIdentifierError{Name: table}
	}

	columns, pkColumn, err := ListColumns(db, table)
	if err != nil {
		return "", err
	}
	if column != "" {
		if !identifierPattern.MatchString(column) {
			return "", &UnsafeIdentifierError{Name: column}
		}
		found = false
		for _, c := range columns {
			if c == column {
				found = true
				break
			}
		}
		if !found {
			return "", &UnsafeIdentifierError{Name: column}
		}
	}
	if pkColumn == "" {
		return "", fmt.Errorf("table %s has no primary key column", table)
	}
	return pkColumn, nil
}

// GetTableProperty reads one column for a batch of primary keys. The result
// slice matches the input order and length; ids with no matching row yield a
// nil entry. Every typed getter routes through here so identifier validation
// happens in exactly one place.
func GetTableProperty(db Querier, table, column string, ids []interface{}) ([]interface{}, error) {
	pkColumn, err := sanitizeIdentifiers(db, table, column)
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(ids))
	for i, id := range ids {
		sqlStr, args, err := psql.Select(column).
			From(table).
			Where(sq.Eq{pkColumn: id}).
			Limit(1).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetTableProperty(%s.%s): %w", table, column, err)
		}

		var v interface{}
		err = db.QueryRow(sqlStr, args...).Scan(&v)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s.%s for id %v: %w", table, column, id, err)
		}
		values[i] = v
	}
	return values, nil
}

// SetTableProperty writes one column for a batch of primary keys.
func SetTableProperty(db Querier, table, column string, ids []interface{}, values []interface{}) error {
	if len(ids) != len(values) {
		return fmt.Errorf("%w: %d ids, %d values", ErrInvalidArity, len(ids), len(values))
	}
	pkColumn, err := sanitizeIdentifiers(db, table, column)
	if err != nil {
		return err
	}

	for i, id := range ids {
		sqlStr, args, err := psql.Update(table).
			Set(column, values[i]).
			Where(sq.Eq{pkColumn: id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build SQL for SetTableProperty(%s.%s): %w", table, column, err)
		}
		if _, err := db.Exec(sqlStr, args...); err != nil {
			return fmt.Errorf("failed to update %s.%s for id %v: %w", table, column, id, err)
		}
	}
	return nil
}

// CountRows returns the number of rows in a table. Used by idempotency
// checks and diagnostics.
func CountRows(db Querier, table string) (int64, error) {
	if _, err := sanitizeIdentifiers(db, table, ""); err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}
