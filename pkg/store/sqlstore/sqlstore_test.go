package sqlstore

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/store/storetest"
)

func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "tapes.db")
	b, err := Open(context.Background(), SQLite, dsn, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return newSQLiteBackend(t) })
}

func TestSQLite_ReopenKeepsTapes(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "tapes.db")
	ctx := context.Background()

	b, err := Open(ctx, SQLite, dsn, "recordings")
	require.NoError(t, err)
	storetest.Write(t, b, "github/users", "content")
	require.NoError(t, b.Close())

	b, err = Open(ctx, SQLite, dsn, "recordings")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	assert.Equal(t, "content", storetest.Read(t, b, "github/users"))
}

func TestNew_RejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(context.Background(), db, Postgres, "tapes; DROP TABLE users")
	assert.ErrorContains(t, err, "invalid table name")
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite": SQLite, "sqlite3": SQLite, "postgres": Postgres, "PostgreSQL": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func newPostgresMock(t *testing.T) (*Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS tapes")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	b, err := New(context.Background(), db, Postgres, "tapes")
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }
	return b, mock
}

func TestPostgres_Open(t *testing.T) {
	b, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT content FROM tapes WHERE name = $1")).
		WithArgs("github/users").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow([]byte("version: 1.0.0")))

	rc, err := b.Open(ctx, "github/users")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "version: 1.0.0", string(data))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT content FROM tapes WHERE name = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = b.Open(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CommitUpserts(t *testing.T) {
	b, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tapes (name, content, updated_at) VALUES ($1, $2, $3)")).
		WithArgs("github/users", []byte("content"), time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	blob, err := b.Create(context.Background(), "github/users")
	require.NoError(t, err)
	_, err = blob.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, blob.Commit())
	require.NoError(t, blob.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UncommittedBlobIssuesNoStatement(t *testing.T) {
	b, mock := newPostgresMock(t)

	blob, err := b.Create(context.Background(), "tape")
	require.NoError(t, err)
	_, _ = blob.Write([]byte("discarded"))
	require.NoError(t, blob.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Remove(t *testing.T) {
	b, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tapes WHERE name = $1")).
		WithArgs("tape").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tapes WHERE name = $1")).
		WithArgs("tape").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, b.Remove(ctx, "tape"))
	assert.ErrorIs(t, b.Remove(ctx, "tape"), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	b, mock := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM tapes ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("github/repos").
			AddRow("github/users").
			AddRow("stripe/charges"))

	names, err := b.List(context.Background(), "github/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"github/repos", "github/users"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}
