// Package redisstore provides a Redis tape backend. Each tape is a string
// key holding the encoded document.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/redis/go-redis/v9"

	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

// DefaultPrefix namespaces tape keys.
const DefaultPrefix = "tapedeck:tapes:"

const scanCount = 100

// Options configures a connection made by Open.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

var _ store.Backend = (*Backend)(nil)

// Backend stores tapes as Redis strings under a key prefix.
type Backend struct {
	client     redis.UniversalClient
	prefix     string
	ownsClient bool
}

// Open connects to Redis and checks the connection. The returned Backend
// closes the client on Close.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	b := New(client, opts.Prefix)
	b.ownsClient = true
	return b, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client redis.UniversalClient, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) key(name string) string { return b.prefix + name }

// Open implements store.Backend.
func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, err := b.client.Get(ctx, b.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create implements store.Backend. The document is written with a single SET
// on Commit.
func (b *Backend) Create(ctx context.Context, name string) (tape.Blob, error) {
	return &blob{ctx: ctx, backend: b, name: name}, nil
}

// Remove implements store.Backend.
func (b *Backend) Remove(ctx context.Context, name string) error {
	n, err := b.client.Del(ctx, b.key(name)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
	}
	return nil
}

// List implements store.Backend. Keys are enumerated with SCAN so large
// keyspaces are not blocked.
func (b *Backend) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	names := []string{}
	iter := b.client.Scan(ctx, 0, escapeMatch(b.prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), b.prefix)
		if pattern == "" || doublestar.MatchUnvalidated(pattern, name) {
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	// SCAN may return a key more than once.
	sort.Strings(names)
	return slices.Compact(names), nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

// escapeMatch escapes glob metacharacters for a SCAN MATCH pattern.
func escapeMatch(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
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
	if err := w.backend.client.Set(w.ctx, w.backend.key(w.name), w.buf.Bytes(), 0).Err(); err != nil {
		return err
	}
	w.committed = true
	return nil
}

func (w *blob) Close() error {
	w.closed = true
	return nil
}
