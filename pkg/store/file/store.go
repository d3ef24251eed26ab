// Package file provides a filesystem tape backend. Each tape is one file
// named after the tape under a root directory; slashes in the tape name
// become subdirectories.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/tapedeck/pkg/logging"
	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

var _ store.Backend = (*Backend)(nil)

// Backend stores tapes as files under a directory.
type Backend struct {
	dir string
	ext string
	log *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// New creates a Backend rooted at dir, creating it if needed. ext is the
// file extension including the dot, e.g. ".yaml". An empty dir uses
// store.DefaultTapesDir().
func New(dir, ext string, opts ...Option) (*Backend, error) {
	if dir == "" {
		dir = store.DefaultTapesDir()
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	b := &Backend{dir: dir, ext: ext, log: logging.Nop()}
	for _, opt := range opts {
		opt(b)
	}

	// Ensure directory exists with secure permissions (0700)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create tapes directory: %w", err)
	}
	return b, nil
}

// Dir returns the root directory.
func (b *Backend) Dir() string { return b.dir }

// Path returns the file path of a tape.
func (b *Backend) Path(name string) string {
	return filepath.Join(b.dir, filepath.FromSlash(name)+b.ext)
}

// Open implements store.Backend.
func (b *Backend) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(b.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Create implements store.Backend. The content is written to a temp file next
// to the target and renamed over it on Commit.
func (b *Backend) Create(_ context.Context, name string) (tape.Blob, error) {
	path := b.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create tape directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &blob{f: f, path: path, log: b.log}, nil
}

// Remove implements store.Backend.
func (b *Backend) Remove(_ context.Context, name string) error {
	if err := os.Remove(b.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return err
	}
	return nil
}

// List implements store.Backend.
func (b *Backend) List(_ context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "**/*"
	}

	matches, err := doublestar.Glob(os.DirFS(b.dir), pattern+b.ext, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(m, b.ext))
	}
	sort.Strings(names)
	return names, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error { return nil }

// blob is a pending atomic write: temp file, fsync, rename.
type blob struct {
	f         *os.File
	path      string
	log       *slog.Logger
	committed bool
	closed    bool
	discarded bool
}

func (w *blob) Write(p []byte) (int, error) {
	if w.discarded {
		return 0, fmt.Errorf("%s: %w", w.path, store.ErrBlobClosed)
	}
	return w.f.Write(p)
}

func (w *blob) Commit() error {
	if w.committed {
		return nil
	}
	if w.discarded {
		return fmt.Errorf("%s: %w", w.path, store.ErrBlobClosed)
	}
	tmp := w.f.Name()

	if err := w.f.Sync(); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}
	w.closed = true

	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp) // Clean up temp file on failure
		return err
	}
	w.committed = true
	return nil
}

func (w *blob) Close() error {
	if w.committed {
		return nil
	}
	w.discarded = true
	if !w.closed {
		_ = w.f.Close()
		w.closed = true
	}
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.log.Warn("failed to remove temp file", "path", w.f.Name(), "error", err)
	}
	return nil
}
