// Package catalog keeps the platform's title bookkeeping in a SQLite database:
// application records, installed content-meta entries, their content pieces,
// display metadata and play events. Catalog implements content.Platform.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeout is how long a statement waits on a locked catalog
const busyTimeout = 30 * time.Second

// database is the catalog's single SQLite connection. Once closed, every call
// fails with database/sql's closed-database error.
type database struct {
	db   *sql.DB
	path string
}

// openDatabase opens the catalog file at path, creating its directory and
// schema on first use
func openDatabase(ctx context.Context, path string) (*database, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=%d&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}

	// foreign keys are a per-connection pragma; one connection keeps them on
	db.SetMaxOpenConns(1)

	d := &database{db: db, path: path}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to catalog %s: %w", path, err)
	}
	if err := d.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return d, nil
}

func (d *database) close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("closing catalog %s: %w", d.path, err)
	}
	return nil
}

func (d *database) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

func (d *database) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *database) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func (d *database) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}
