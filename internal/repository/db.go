package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// DB is an open audit database together with the SQL dialect its statements
// are built for.
type DB struct {
	SQL     *sql.DB
	Dialect string
	pool    *pgxpool.Pool
}

// Open connects to the DSN. postgres:// and postgresql:// go through a pgx
// pool; sqlite: and file: URLs (or a bare path ending in .db) use the pure-Go
// SQLite driver.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.HasPrefix(cfg.DSN, "postgres://"), strings.HasPrefix(cfg.DSN, "postgresql://"):
		return openPostgres(ctx, cfg, logger)
	case strings.HasPrefix(cfg.DSN, "sqlite:"), strings.HasPrefix(cfg.DSN, "file:"), strings.HasSuffix(cfg.DSN, ".db"):
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database DSN scheme")
	}
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", "pgx")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "thesislens"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx, cancel := withOptionalTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: dialect.Postgres, pool: pool}
	if err := db.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return db, nil
}

func openSQLite(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite:")
	path = strings.TrimPrefix(path, "//")
	logger.Info("connecting to database", "driver", "sqlite", "path", path)
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; in-memory databases would otherwise be per-connection.
	sqldb.SetMaxOpenConns(1)

	db := &DB{SQL: sqldb, Dialect: dialect.SQLite}
	if err := db.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return db, nil
}

// Migrate creates the audit table when it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	ddl := sqliteSchema
	if db.Dialect == dialect.Postgres {
		ddl = postgresSchema
	}
	if _, err := db.SQL.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database connections gracefully.
func (db *DB) Close(logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if err := db.SQL.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()
	return db.SQL.PingContext(ctx)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analysis_job (
	id                UUID PRIMARY KEY,
	filename          TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	prompt_version    TEXT NOT NULL,
	model             TEXT NOT NULL,
	status            TEXT NOT NULL,
	page_count        INTEGER NOT NULL DEFAULT 0,
	result_kind       TEXT NOT NULL DEFAULT '',
	plagiarism_score  DOUBLE PRECISION,
	clarity_score     INTEGER,
	readability_score INTEGER,
	todo_list         TEXT NOT NULL DEFAULT '[]',
	warnings          INTEGER NOT NULL DEFAULT 0,
	emails_sent       INTEGER NOT NULL DEFAULT 0,
	emails_failed     INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analysis_job (
	id                TEXT PRIMARY KEY,
	filename          TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	prompt_version    TEXT NOT NULL,
	model             TEXT NOT NULL,
	status            TEXT NOT NULL,
	page_count        INTEGER NOT NULL DEFAULT 0,
	result_kind       TEXT NOT NULL DEFAULT '',
	plagiarism_score  REAL,
	clarity_score     INTEGER,
	readability_score INTEGER,
	todo_list         TEXT NOT NULL DEFAULT '[]',
	warnings          INTEGER NOT NULL DEFAULT 0,
	emails_sent       INTEGER NOT NULL DEFAULT 0,
	emails_failed     INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	started_at        DATETIME NOT NULL,
	finished_at       DATETIME
)`
