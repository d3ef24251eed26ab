// Package sqlstore provides a SQL tape backend. Tapes are rows of a single
// table keyed by name. SQLite (modernc.org/sqlite, pure Go) and PostgreSQL
// (github.com/lib/pq) are supported.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "tapes"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ store.Backend = (*Backend)(nil)

// Backend stores tapes in a SQL table.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	table   string
	ownsDB  bool
	now     func() time.Time
}

// ParseDialect maps a driver name to a Dialect. "postgresql" and "pgx" are
// accepted as aliases for postgres, "sqlite3" for sqlite.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Open connects to dsn and prepares table. The returned Backend owns the
// connection and closes it on Close.
func Open(ctx context.Context, dialect Dialect, dsn, table string) (*Backend, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// Serialize writers so concurrent flushes don't hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	b, err := New(ctx, db, dialect, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b.ownsDB = true
	return b, nil
}

// New wraps an existing connection and creates table if it does not exist.
// The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*Backend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	b := &Backend{db: db, dialect: dialect, table: table, now: time.Now}
	if err := b.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate tapes table: %w", err)
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	contentType := "BLOB"
	if b.dialect == Postgres {
		contentType = "BYTEA"
	}
	query := `CREATE TABLE IF NOT EXISTS ` + b.table + ` (
		name TEXT PRIMARY KEY,
		content ` + contentType + ` NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	_, err := b.db.ExecContext(ctx, query)
	return err
}

// bind rewrites ? placeholders into $N for postgres.
func (b *Backend) bind(query string) string {
	if b.dialect != Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Open implements store.Backend.
func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var content []byte
	err := b.db.QueryRowContext(ctx, b.bind(`SELECT content FROM `+b.table+` WHERE name = ?`), name).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Create implements store.Backend. Content is buffered and upserted in a
// single statement on Commit.
func (b *Backend) Create(ctx context.Context, name string) (tape.Blob, error) {
	return &blob{ctx: ctx, backend: b, name: name}, nil
}

func (b *Backend) upsert(ctx context.Context, name string, content []byte) error {
	query := `INSERT INTO ` + b.table + ` (name, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`
	_, err := b.db.ExecContext(ctx, b.bind(query), name, content, b.now().UTC())
	return err
}

// Remove implements store.Backend.
func (b *Backend) Remove(ctx context.Context, name string) error {
	res, err := b.db.ExecContext(ctx, b.bind(`DELETE FROM `+b.table+` WHERE name = ?`), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
	}
	return nil
}

// List implements store.Backend.
func (b *Backend) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	rows, err := b.db.QueryContext(ctx, `SELECT name FROM `+b.table+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if pattern == "" || doublestar.MatchUnvalidated(pattern, name) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	if b.ownsDB {
		return b.db.Close()
	}
	return nil
}

type blob struct {
	ctx     context.Context
	backend *Backend
	name    string
	buf     bytes.Buffer

	committed bool
	closed    bool
}

func (w *blob) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("tape %q: %w", w.name, store.ErrBlobClosed)
	}
	return w.buf.Write(p)
}

func (w *blob) Commit() error {
	if w.committed {
		return nil
	}
	if w.closed {
		return fmt.Errorf("tape %q: %w", w.name, store.ErrBlobClosed)
	}
	if err := w.backend.upsert(w.ctx, w.name, w.buf.Bytes()); err != nil {
		return err
	}
	w.committed = true
	return nil
}

func (w *blob) Close() error {
	w.closed = true
	return nil
}
