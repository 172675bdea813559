package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sqlx.DB for either Postgres (pgx) or SQLite.
type DB struct {
	Client *sqlx.DB
	Driver string
}

// NewDB opens a connection with sane defaults and applies the schema.
func NewDB(driver, connString string) (*DB, error) {
	if driver == DriverSQLite {
		connString = sqliteDSN(connString)
	}
	db, err := sqlx.Open(driver, connString)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverSQLite:
		// an in-memory database lives only as long as its single connection
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	d := &DB{Client: db, Driver: driver}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return d, err
	}
	if err := d.Migrate(ctx); err != nil {
		return d, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// sqliteDSN turns on foreign key enforcement for every connection the driver
// opens, so ON DELETE CASCADE applies.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1"
}

// Migrate creates missing tables for the configured dialect.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.Driver == DriverSQLite {
		schema = sqliteSchema
	}
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Work dates are kept as ISO text in both dialects so range filters compare lexically.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	name          VARCHAR(100) NOT NULL UNIQUE,
	email         VARCHAR(100) NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	work_date   VARCHAR(10) NOT NULL,
	check_in    TIMESTAMPTZ,
	check_out   TIMESTAMPTZ,
	is_present  BOOLEAN NOT NULL DEFAULT FALSE,
	class_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, work_date)
);
CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(work_date);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS makeup_classes (
	id              BIGSERIAL PRIMARY KEY,
	name            VARCHAR(100) NOT NULL,
	subject         VARCHAR(100) NOT NULL,
	original_date   VARCHAR(50) NOT NULL,
	original_period VARCHAR(50) NOT NULL,
	new_date        VARCHAR(50) NOT NULL,
	new_period      VARCHAR(50) NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS teacher_salaries (
	id                 BIGSERIAL PRIMARY KEY,
	teacher_name       VARCHAR(100) NOT NULL UNIQUE,
	salary_per_class   INTEGER NOT NULL DEFAULT 0,
	transportation_fee INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	is_admin      BOOLEAN NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	work_date   TEXT NOT NULL,
	check_in    DATETIME,
	check_out   DATETIME,
	is_present  BOOLEAN NOT NULL DEFAULT 0,
	class_count INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE (user_id, work_date)
);
CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(work_date);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS makeup_classes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	subject         TEXT NOT NULL,
	original_date   TEXT NOT NULL,
	original_period TEXT NOT NULL,
	new_date        TEXT NOT NULL,
	new_period      TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS teacher_salaries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	teacher_name       TEXT NOT NULL UNIQUE,
	salary_per_class   INTEGER NOT NULL DEFAULT 0,
	transportation_fee INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);
`
