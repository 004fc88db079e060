package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "guildbot_documents"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBackend stores documents as rows in Postgres. The table is created
// lazily on first use; a failed setup is retried by the next operation.
type PostgresBackend struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc
	log       *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewPostgresBackend returns a backend for dsn. No connection is made until
// the first operation.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return &PostgresBackend{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
		log:       slog.With("component", "data.postgres"),
	}, nil
}

func (b *PostgresBackend) Has(ctx context.Context, path string) bool {
	if err := b.ensureReady(ctx); err != nil {
		b.log.Error("has document", "doc", path, "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE path = $1", postgresQuoteIdentifier(b.tableName))
	var one int
	err := b.db.QueryRowContext(ctx, query, path).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		b.log.Error("has document", "doc", path, "error", err)
	}
	return err == nil
}

func (b *PostgresBackend) Get(ctx context.Context, path string) ([]byte, bool) {
	if err := b.ensureReady(ctx); err != nil {
		b.log.Error("read document", "doc", path, "error", err)
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT body FROM %s WHERE path = $1", postgresQuoteIdentifier(b.tableName))
	var body string
	err := b.db.QueryRowContext(ctx, query, path).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		b.log.Error("read document", "doc", path, "error", err)
		return nil, false
	}
	if !json.Valid([]byte(body)) {
		b.log.Error("read document", "doc", path, "error", ErrMalformed)
		return nil, false
	}
	return []byte(body), true
}

func (b *PostgresBackend) Set(ctx context.Context, path string, raw []byte) bool {
	body, err := pretty(raw)
	if err != nil {
		b.log.Error("encode document", "doc", path, "error", err)
		return false
	}
	if err := b.ensureReady(ctx); err != nil {
		b.log.Error("write document", "doc", path, "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (path, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (path)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`, postgresQuoteIdentifier(b.tableName))
	if _, err := b.db.ExecContext(ctx, query, path, string(body)); err != nil {
		b.log.Error("write document", "doc", path, "error", err)
		return false
	}
	return true
}

func (b *PostgresBackend) Delete(ctx context.Context, path string) bool {
	if err := b.ensureReady(ctx); err != nil {
		b.log.Error("delete document", "doc", path, "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE path = $1", postgresQuoteIdentifier(b.tableName))
	res, err := b.db.ExecContext(ctx, query, path)
	if err != nil {
		b.log.Error("delete document", "doc", path, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func (b *PostgresBackend) List(ctx context.Context, dir string, visit Visitor) bool {
	if err := b.ensureReady(ctx); err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}
	qctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	// char_length, not len(dir): left() counts characters.
	query := fmt.Sprintf("SELECT path, body FROM %s WHERE left(path, char_length($1)) = $1 ORDER BY path",
		postgresQuoteIdentifier(b.tableName))
	rows, err := b.db.QueryContext(qctx, query, dir)
	if err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}
	defer rows.Close()

	var found [][2]string
	for rows.Next() {
		var path, body string
		if err := rows.Scan(&path, &body); err != nil {
			b.log.Error("scan document", "dir", dir, "error", err)
			continue
		}
		found = append(found, [2]string{path, body})
	}
	if err := rows.Err(); err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}

	for _, doc := range found {
		path, body := doc[0], doc[1]
		if !json.Valid([]byte(body)) {
			b.log.Error("read document", "doc", path, "error", ErrMalformed)
			continue
		}
		if err := visit(path, []byte(body)); err != nil {
			b.log.Error("visit document", "doc", path, "error", err)
		}
	}
	return true
}

func (b *PostgresBackend) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ensureReady opens the pool and creates the table. Until that succeeds every
// operation tries again, so a cancelled first caller or a brief outage does
// not disable the backend for good.
func (b *PostgresBackend) ensureReady(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}

	db, err := b.openDB("postgres", b.dsn)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			path TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, postgresQuoteIdentifier(b.tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return err
	}
	b.db = db
	return nil
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
