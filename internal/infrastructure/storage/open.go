package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"UpdatesDigest/internal/config"
)

// Dialect selects SQL placeholders and the driver name.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

// Open connects to the configured database. SQLite files are migrated on
// open; Postgres schemas are managed with MigratePostgres.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	if dialect == SQLite {
		db, err := OpenSQLite(cfg.DSN)
		return db, dialect, err
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping postgres: %w", err)
	}
	return db, dialect, nil
}

// OpenSQLite opens (and migrates) a SQLite database; ":memory:" works for tests.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
