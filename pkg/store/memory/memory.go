// Package memory provides an in-process tape backend with no persistence.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

var _ store.Backend = (*Backend)(nil)

// Backend keeps committed tape content in a map. Content is copied on the way
// in and out.
type Backend struct {
	mu    sync.RWMutex
	tapes map[string][]byte
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{tapes: make(map[string][]byte)}
}

// Open implements store.Backend.
func (b *Backend) Open(_ context.Context, name string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.tapes[name]
	if !ok {
		return nil, fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Create implements store.Backend.
func (b *Backend) Create(_ context.Context, name string) (tape.Blob, error) {
	return &blob{backend: b, name: name}, nil
}

// Remove implements store.Backend.
func (b *Backend) Remove(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tapes[name]; !ok {
		return fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
	}
	delete(b.tapes, name)
	return nil
}

// List implements store.Backend.
func (b *Backend) List(_ context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.tapes))
	for name := range b.tapes {
		if pattern == "" || doublestar.MatchUnvalidated(pattern, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error { return nil }

type blob struct {
	backend *Backend
	name    string
	buf     bytes.Buffer

	committed bool
	closed    bool
}

func (w *blob) Write(p []byte) (int, error) {
	if w.committed {
		return 0, fmt.Errorf("tape %q: write after commit", w.name)
	}
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
	w.committed = true

	w.backend.mu.Lock()
	w.backend.tapes[w.name] = bytes.Clone(w.buf.Bytes())
	w.backend.mu.Unlock()
	return nil
}

func (w *blob) Close() error {
	w.closed = true
	return nil
}
