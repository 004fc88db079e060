package data

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Index on updated_at for the idle mail sweep
const currentSchemaVersion = 1

// SQLiteBackend stores documents as rows in a SQLite database.
// Uses WAL mode so the sweeper can read while the dispatcher writes.
type SQLiteBackend struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite creates or opens a SQLite database at path.
// Applies required pragmas and migrations automatically.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{
		db:  db,
		log: slog.With("component", "data.sqlite", "path", path),
	}, nil
}

func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) Has(ctx context.Context, path string) bool {
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE path = ?`, path).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		b.log.Error("has document", "doc", path, "error", err)
	}
	return err == nil
}

func (b *SQLiteBackend) Get(ctx context.Context, path string) ([]byte, bool) {
	var body string
	err := b.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE path = ?`, path).Scan(&body)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			b.log.Error("read document", "doc", path, "error", err)
		}
		return nil, false
	}
	if !json.Valid([]byte(body)) {
		b.log.Error("read document", "doc", path, "error", ErrMalformed)
		return nil, false
	}
	return []byte(body), true
}

func (b *SQLiteBackend) Set(ctx context.Context, path string, raw []byte) bool {
	body, err := pretty(raw)
	if err != nil {
		b.log.Error("encode document", "doc", path, "error", err)
		return false
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO documents (path, body, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, path, string(body))
	if err != nil {
		b.log.Error("write document", "doc", path, "error", err)
		return false
	}
	return true
}

func (b *SQLiteBackend) Delete(ctx context.Context, path string) bool {
	res, err := b.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		b.log.Error("delete document", "doc", path, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func (b *SQLiteBackend) List(ctx context.Context, dir string, visit Visitor) bool {
	rows, err := b.db.QueryContext(ctx,
		`SELECT path, body FROM documents WHERE substr(path, 1, length(?1)) = ?1 ORDER BY path`,
		dir)
	if err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}

	// Drain before visiting: visitors may write through the same connection.
	type row struct {
		path string
		body string
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.path, &r.body); err != nil {
			b.log.Error("scan document", "dir", dir, "error", err)
			continue
		}
		found = append(found, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}

	for _, r := range found {
		if !json.Valid([]byte(r.body)) {
			b.log.Error("read document", "doc", r.path, "error", ErrMalformed)
			continue
		}
		if err := visit(r.path, []byte(r.body)); err != nil {
			b.log.Error("visit document", "doc", r.path, "error", err)
		}
	}
	return true
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// pragma returns the current value of a pragma. Used by tests.
func (b *SQLiteBackend) pragma(name string) (string, error) {
	var value string
	if err := b.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
