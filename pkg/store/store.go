// Package store manages named tapes on top of a pluggable backing store.
//
// A TapeStore lazily loads tapes from a Backend, caches them for the rest of
// the session, persists only dirty tapes, and flushes everything on Shutdown.
// Backends live in subpackages:
//   - file: one file per tape under a directory (the default)
//   - memory: in-process, no persistence
//   - sqlstore: SQLite or PostgreSQL table
//   - redisstore: one Redis key per tape
//   - s3store: one object per tape in an S3-compatible bucket
//
// Default directories follow the XDG Base Directory Specification:
//   - Config: ~/.config/tapedeck/
//   - Data:   ~/.local/share/tapedeck/ (tapes)
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrNotLoaded   = errors.New("tape not loaded")
	ErrClosed      = errors.New("store is closed")
	ErrInvalidName = errors.New("invalid tape name")
	ErrBlobClosed  = errors.New("blob is closed")
)

// Backend kinds.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Backend holds the serialized content of tapes by name.
type Backend interface {
	// Open returns the committed content of a tape, or an error wrapping
	// ErrNotFound when there is none.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Create starts a write. Nothing is visible to Open until the blob is
	// committed.
	Create(ctx context.Context, name string) (tape.Blob, error)

	// Remove deletes a tape. Removing a missing tape returns ErrNotFound.
	Remove(ctx context.Context, name string) error

	// List returns the sorted names of stored tapes matching a doublestar
	// pattern. An empty pattern matches everything.
	List(ctx context.Context, pattern string) ([]string, error)

	Close() error
}

// ValidateName checks that name is a clean, relative, slash-separated path.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: %q must be a relative slash-separated path", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidName, name)
		}
	}
	return nil
}

// DefaultDataDir returns the default data directory following XDG spec.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tapedeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tapedeck", "data")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "tapedeck")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "tapedeck")
		}
		return filepath.Join(home, "AppData", "Local", "tapedeck")
	}
	return filepath.Join(home, ".local", "share", "tapedeck")
}

// DefaultConfigDir returns the default config directory following XDG spec.
func DefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tapedeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tapedeck", "config")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Preferences", "tapedeck")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tapedeck")
		}
		return filepath.Join(home, "AppData", "Roaming", "tapedeck")
	}
	return filepath.Join(home, ".config", "tapedeck")
}

// DefaultTapesDir returns the default tapes directory.
// Tapes are user data, so they go in the data directory.
func DefaultTapesDir() string {
	return filepath.Join(DefaultDataDir(), "tapes")
}
