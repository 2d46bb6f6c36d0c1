// Package db provides database persistence for duckling: tasks, task logs,
// the repository registry, pre-commit checks, and settings. SQLite is the
// default backend; PostgreSQL is available behind the same driver
// abstraction.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randalmurphal/duckling/internal/db/driver"
)

//go:embed schema
var schemaFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a database connection with driver abstraction.
type DB struct {
	driver driver.Driver
	path   string
}

// Open opens a SQLite database at the given path, creating the parent
// directory if needed.
func Open(path string) (*DB, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens an in-memory SQLite database. Each call creates a new
// isolated database; tests rely on that.
func OpenInMemory() (*DB, error) {
	drv, err := driver.New(driver.DialectSQLite)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(":memory:"); err != nil {
		return nil, err
	}
	return &DB{driver: drv, path: ":memory:"}, nil
}

// OpenPostgres opens a PostgreSQL database from a connection string.
func OpenPostgres(dsn string) (*DB, error) {
	return OpenWithDialect(dsn, driver.DialectPostgres)
}

// OpenWithDialect opens a database with a specific dialect.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	if dialect == driver.DialectSQLite {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &DB{driver: drv, path: dsn}, nil
}

// Migrate applies all pending core schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return d.driver.Migrate(ctx, schemaFS, "core")
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// Path returns the database DSN/path.
func (d *DB) Path() string {
	return d.path
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// DB returns the underlying sql.DB for advanced operations.
func (d *DB) DB() *sql.DB {
	return d.driver.DB()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, d.rebind(query), args...)
}

// rebind rewrites ? placeholders into the dialect's positional form. Queries
// are written with ? throughout; SQLite uses them as-is.
func (d *DB) rebind(query string) string {
	if d.driver.Dialect() != driver.DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
