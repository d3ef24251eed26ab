// Package storetest holds the conformance suite every store.Backend passes.
package storetest

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/tapedeck/pkg/store"
)

// Run exercises a backend created fresh for each subtest by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("open missing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Open(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit then read", func(t *testing.T) {
		b := newBackend(t)
		Write(t, b, "github/users", "version: 1.0.0\n")
		assert.Equal(t, "version: 1.0.0\n", Read(t, b, "github/users"))
	})

	t.Run("overwrite", func(t *testing.T) {
		b := newBackend(t)
		Write(t, b, "tape", "first")
		Write(t, b, "tape", "second")
		assert.Equal(t, "second", Read(t, b, "tape"))
	})

	t.Run("uncommitted blob is invisible", func(t *testing.T) {
		b := newBackend(t)
		Write(t, b, "tape", "committed")

		blob, err := b.Create(ctx, "tape")
		require.NoError(t, err)
		_, err = blob.Write([]byte("discarded"))
		require.NoError(t, err)
		require.NoError(t, blob.Close())

		assert.Equal(t, "committed", Read(t, b, "tape"))

		blob, err = b.Create(ctx, "never")
		require.NoError(t, err)
		_, _ = blob.Write([]byte("discarded"))
		require.NoError(t, blob.Close())

		_, err = b.Open(ctx, "never")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("close after commit", func(t *testing.T) {
		b := newBackend(t)
		blob, err := b.Create(ctx, "tape")
		require.NoError(t, err)
		_, err = blob.Write([]byte("kept"))
		require.NoError(t, err)
		require.NoError(t, blob.Commit())
		assert.NoError(t, blob.Close())
		assert.Equal(t, "kept", Read(t, b, "tape"))
	})

	t.Run("commit after close fails", func(t *testing.T) {
		b := newBackend(t)
		blob, err := b.Create(ctx, "tape")
		require.NoError(t, err)
		_, err = blob.Write([]byte("late"))
		require.NoError(t, err)
		require.NoError(t, blob.Close())

		assert.ErrorIs(t, blob.Commit(), store.ErrBlobClosed)
		_, err = b.Open(ctx, "tape")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		b := newBackend(t)
		Write(t, b, "tape", "x")
		require.NoError(t, b.Remove(ctx, "tape"))

		_, err := b.Open(ctx, "tape")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, b.Remove(ctx, "tape"), store.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		b := newBackend(t)
		for _, name := range []string{"github/users", "github/repos", "stripe/charges", "root"} {
			Write(t, b, name, name)
		}

		all, err := b.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"github/repos", "github/users", "root", "stripe/charges"}, all)

		github, err := b.List(ctx, "github/*")
		require.NoError(t, err)
		assert.Equal(t, []string{"github/repos", "github/users"}, github)

		deep, err := b.List(ctx, "**/charges")
		require.NoError(t, err)
		assert.Equal(t, []string{"stripe/charges"}, deep)

		none, err := b.List(ctx, "nothing/*")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// Write commits content under name.
func Write(t *testing.T, b store.Backend, name, content string) {
	t.Helper()
	blob, err := b.Create(context.Background(), name)
	require.NoError(t, err)
	defer func() { _ = blob.Close() }()

	_, err = io.WriteString(blob, content)
	require.NoError(t, err)
	require.NoError(t, blob.Commit())
}

// Read returns the committed content under name.
func Read(t *testing.T, b store.Backend, name string) string {
	t.Helper()
	rc, err := b.Open(context.Background(), name)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}
