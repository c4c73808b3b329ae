// Package sqlite implements the repository interfaces on SQLite.
//
// DOCUMENTS ON SQLITE:
// Every document is one row of the documents table, keyed by (collection, id),
// with the body stored as JSON text. Queries filter with SQLite's JSON1
// functions (json_extract, json_each), so the store behaves like a small
// document database without a separate server.
//
// WHY ONE CONNECTION?
// SQLite allows a single writer. Holding the pool at one connection turns
// would-be SQLITE_BUSY errors into queueing inside database/sql, and it
// keeps ":memory:" databases alive for tests (each new connection to
// ":memory:" would otherwise see a fresh, empty database).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/sakif/socialhub/internal/changefeed"
	"github.com/sakif/socialhub/internal/repository/sqlite/migrations"
)

// DB wraps the connection pool and the change notifier used by Watch.
type DB struct {
	conn     *sql.DB
	notifier changefeed.Notifier
	logger   *slog.Logger
}

// New opens the database at dbPath, applies pragmas and runs migrations.
//
// dbPath examples:
//   - "data/socialhub.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string, notifier changefeed.Notifier, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if notifier == nil {
		notifier = changefeed.NewHub()
	}
	db := &DB{conn: conn, notifier: notifier, logger: logger}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate applies the embedded goose migrations.
func (db *DB) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.conn, ".")
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
