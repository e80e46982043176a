package database

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jmoiron/sqlx"

	"github.com/eslsoft/chordnet/internal/infrastructure/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DB is an open database handle plus the SQL dialect its driver speaks.
type DB struct {
	*sqlx.DB
	Driver  string
	Dialect string
}

// DialectFor maps a database/sql driver name onto an ent dialect.
func DialectFor(driver string) (string, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return dialect.SQLite, nil
	case "postgres", "pgx":
		return dialect.Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewDB opens the database configured in cfg.
func NewDB(cfg *config.Config) (*DB, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database driver: %w", err)
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database dsn: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

// Open connects to dsn with driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dia, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	raw, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if dia == dialect.SQLite {
		// One connection keeps per-connection pragmas in effect and
		// serializes writers.
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
	}

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if dia == dialect.SQLite {
		if _, err := raw.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			raw.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	return &DB{DB: raw, Driver: driver, Dialect: dia}, nil
}
