// Package db opens the local run-history database and applies its schema.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// InterruptedReason is stored on runs that were still active when the
// process last exited.
const InterruptedReason = "interrupted by restart"

// DB wraps the SQLite handle. SQLite allows one writer, so the pool is
// limited to a single connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates the database file if needed, applies pending migrations and
// marks runs left active by a previous process as stopped.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	d := &DB{conn: conn, path: path, logger: logger}
	if err := d.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if n, err := d.markInterruptedRuns(context.Background()); err != nil {
		logger.Warn("failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		logger.Warn("marked interrupted runs as stopped", "count", n)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if d.applied(ctx, name) {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := d.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) applied(ctx context.Context, name string) bool {
	var one int
	err := d.conn.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&one)
	if err != nil {
		return false
	}
	err = d.conn.QueryRowContext(ctx, "SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&one)
	return err == nil
}

// markInterruptedRuns closes out runs a crash left running or paused. Their
// unfinished tasks become skipped.
func (d *DB) markInterruptedRuns(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'skipped', finished_at = ?
		WHERE status IN ('pending', 'running')
		  AND run_id IN (SELECT id FROM runs WHERE status IN ('running', 'paused'))
	`, now); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = 'stopped', error = ?, finished_at = ?, updated_at = ?
		WHERE status IN ('running', 'paused')
	`, InterruptedReason, now, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
