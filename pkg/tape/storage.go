package tape

import (
	"context"
	"io"
)

// FormatVersion is the current tape document format version.
const FormatVersion = "1.0.0"

// Document is the serializable form of a tape.
type Document struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Interactions []Interaction `json:"interactions"`
}

// Codec converts a Document to and from its on-disk representation.
type Codec interface {
	Name() string
	Extension() string
	Encode(w io.Writer, doc *Document) error
	Decode(r io.Reader) (*Document, error)
}

// Source opens the backing content of a tape for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sink opens the backing location of a tape for writing.
type Sink interface {
	Create(ctx context.Context) (Blob, error)
}

// Blob is a pending write. Content becomes visible only once Commit succeeds;
// closing an uncommitted blob discards it. Close is always safe to call.
type Blob interface {
	io.Writer
	Commit() error
	Close() error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f(ctx).
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context) (Blob, error)

// Create calls f(ctx).
func (f SinkFunc) Create(ctx context.Context) (Blob, error) { return f(ctx) }

// Load implements Storable. On success the tape content is replaced, the
// replay cursor is reset and the tape is clean. On failure the tape is left
// untouched.
func (t *MemoryTape) Load(ctx context.Context, src Source, c Codec) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return &LoadError{Tape: t.name, Err: err}
	}
	defer func() { _ = rc.Close() }()

	doc, err := c.Decode(rc)
	if err != nil {
		return &LoadError{Tape: t.name, Err: err}
	}

	interactions := make([]Interaction, len(doc.Interactions))
	for i := range doc.Interactions {
		interactions[i] = doc.Interactions[i].Clone()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactions = interactions
	t.played = make([]bool, len(interactions))
	t.dirty = false
	t.generation++
	return nil
}

// Save implements Storable. The tape is marked clean only when the write is
// committed and no mutation happened while it was in flight.
func (t *MemoryTape) Save(ctx context.Context, dst Sink, c Codec) error {
	t.mu.RLock()
	doc := t.documentLocked()
	generation := t.generation
	t.mu.RUnlock()

	blob, err := dst.Create(ctx)
	if err != nil {
		return &SaveError{Tape: t.name, Err: err}
	}
	defer func() { _ = blob.Close() }()

	if err := c.Encode(blob, doc); err != nil {
		return &SaveError{Tape: t.name, Err: err}
	}
	if err := blob.Commit(); err != nil {
		return &SaveError{Tape: t.name, Err: err}
	}

	t.mu.Lock()
	if t.generation == generation {
		t.dirty = false
	}
	t.mu.Unlock()
	return nil
}
