package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect int

const (
	sqlite dialect = iota
	postgres
)

// DB wraps the results database connection. SQLite is the default; a
// postgres:// DSN selects PostgreSQL through pgx.
type DB struct {
	conn    *sql.DB
	dsn     string
	dialect dialect
}

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres
	}
	return sqlite
}

// Open opens or creates the database named by dsn.
func Open(dsn string) (*DB, error) {
	d := &DB{dsn: dsn, dialect: dialectFor(dsn)}

	driver := "sqlite3"
	if d.dialect == postgres {
		driver = "pgx"
	} else if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d.dialect == sqlite {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if d.dialect == sqlite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	d.conn = conn
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d *DB) Rebind(query string) string {
	if d.dialect != postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) exec(query string, args ...any) (sql.Result, error) {
	return d.conn.Exec(d.Rebind(query), args...)
}

func (d *DB) query(query string, args ...any) (*sql.Rows, error) {
	return d.conn.Query(d.Rebind(query), args...)
}

func (d *DB) queryRow(query string, args ...any) *sql.Row {
	return d.conn.QueryRow(d.Rebind(query), args...)
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id          TEXT PRIMARY KEY,
    user_name   TEXT NOT NULL,
    frontend    TEXT NOT NULL,
    test        TEXT NOT NULL DEFAULT '',
    files       TEXT NOT NULL DEFAULT '[]',
    passed      BOOLEAN NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at DESC);

CREATE TABLE IF NOT EXISTS check_results (
    id            %s,
    submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    title         TEXT NOT NULL,
    tap           TEXT NOT NULL,
    passed_count  INTEGER NOT NULL,
    failed_count  INTEGER NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_submission ON check_results(submission_id, id);
`

// schemaV2 stores each result's records as JSON; the tap column cannot hold
// descriptions containing '#'.
const schemaV2 = `
ALTER TABLE check_results ADD COLUMN records TEXT NOT NULL DEFAULT '[]';
`

func (d *DB) schema() string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return fmt.Sprintf(schemaV1, id)
}

// Migrate applies any schema versions not yet recorded.
func (d *DB) Migrate() error {
	migrations := []string{d.schema(), schemaV2}

	var applied int
	err := d.queryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&applied)
	if err != nil {
		applied = 0
	}

	for i := applied; i < len(migrations); i++ {
		version := i + 1
		if err := d.applySchema(version, migrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) applySchema(version int, schema string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("apply schema v%d: %w", version, err)
	}
	if _, err := tx.Exec(d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"), version, now()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"check_results", "submissions", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
