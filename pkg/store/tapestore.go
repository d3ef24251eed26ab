package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/getmockd/tapedeck/pkg/logging"
	"github.com/getmockd/tapedeck/pkg/tape"
)

const tracerName = "github.com/getmockd/tapedeck/pkg/store"

// DefaultFlushParallelism bounds concurrent saves during Shutdown.
const DefaultFlushParallelism = 4

// TapeStore owns the tapes of a session. It loads each tape at most once,
// serializes saves per tape, and flushes dirty tapes on Shutdown.
type TapeStore struct {
	backend     Backend
	codec       tape.Codec
	defaults    []tape.Option
	parallelism int
	log         *slog.Logger
	tracer      trace.Tracer
	meters      metric.MeterProvider
	metrics     *instruments

	loads singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	mu   sync.Mutex
	tape *tape.MemoryTape
	// removed is set once the tape is deleted from the backend; the entry
	// is never saved again.
	removed bool
}

// Option configures a TapeStore.
type Option func(*TapeStore)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(s *TapeStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTapeDefaults sets options applied to every tape the store creates,
// before any per-call options.
func WithTapeDefaults(opts ...tape.Option) Option {
	return func(s *TapeStore) { s.defaults = append(s.defaults, opts...) }
}

// WithFlushParallelism bounds the number of tapes saved concurrently during
// Shutdown. Values below 1 are ignored.
func WithFlushParallelism(n int) Option {
	return func(s *TapeStore) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *TapeStore) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMeterProvider sets the meter provider. The default is the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *TapeStore) {
		if mp != nil {
			s.meters = mp
		}
	}
}

// New creates a TapeStore over backend using codec for serialization.
func New(backend Backend, codec tape.Codec, opts ...Option) *TapeStore {
	s := &TapeStore{
		backend:     backend,
		codec:       codec,
		parallelism: DefaultFlushParallelism,
		log:         logging.Nop(),
		tracer:      otel.Tracer(tracerName),
		meters:      otel.GetMeterProvider(),
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	in, err := newInstruments(s.meters)
	if err != nil {
		s.log.Warn("failed to create store metrics", "error", err)
		in, _ = newInstruments(noop.NewMeterProvider())
	}
	s.metrics = in
	return s
}

// Codec returns the codec used to serialize tapes.
func (s *TapeStore) Codec() tape.Codec { return s.codec }

// Get returns the named tape, loading it from the backend on first use.
// Options apply only when the tape is loaded; a cached tape is returned as is.
//
// Missing content yields a new empty tape, except in ModeReadOnlyArchive
// where it is a *tape.LoadError. Malformed content is a *tape.LoadError and
// nothing is cached.
func (s *TapeStore) Get(ctx context.Context, name string, opts ...tape.Option) (*tape.MemoryTape, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.entries[name]; ok {
		s.mu.Unlock()
		return e.tape, nil
	}
	s.mu.Unlock()

	v, err, _ := s.loads.Do(name, func() (interface{}, error) {
		s.mu.Lock()
		if e, ok := s.entries[name]; ok {
			s.mu.Unlock()
			return e.tape, nil
		}
		s.mu.Unlock()

		t, err := s.load(ctx, name, opts)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, ErrClosed
		}
		s.entries[name] = &entry{tape: t}
		s.metrics.cached.Add(ctx, 1)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tape.MemoryTape), nil
}

func (s *TapeStore) load(ctx context.Context, name string, opts []tape.Option) (_ *tape.MemoryTape, err error) {
	ctx, finish := s.startSpan(ctx, "tape.load", name)
	defer func() { finish(err) }()

	all := make([]tape.Option, 0, len(s.defaults)+len(opts))
	all = append(all, s.defaults...)
	all = append(all, opts...)
	t := tape.New(name, all...)

	start := time.Now()
	err = t.Load(ctx, s.source(name), s.codec)
	switch {
	case err == nil:
		s.metrics.load(ctx, resultLoaded)
		s.log.Debug("loaded tape", "tape", name, "interactions", t.Len(), "duration", time.Since(start))
		return t, nil
	case errors.Is(err, ErrNotFound) && t.Mode() != tape.ModeReadOnlyArchive:
		s.metrics.load(ctx, resultNew)
		s.log.Debug("starting new tape", "tape", name, "mode", t.Mode())
		return t, nil
	default:
		s.metrics.load(ctx, resultError)
		return nil, err
	}
}

// Save persists the named tape if it is dirty. Archive tapes are never
// written.
func (s *TapeStore) Save(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return s.saveLocked(ctx, name, e)
}

// saveLocked writes e's tape. The caller holds e.mu.
func (s *TapeStore) saveLocked(ctx context.Context, name string, e *entry) (err error) {
	t := e.tape
	if e.removed || t.Mode() == tape.ModeReadOnlyArchive || !t.IsDirty() {
		return nil
	}

	ctx, finish := s.startSpan(ctx, "tape.save", name)
	defer func() { finish(err) }()

	start := time.Now()
	if err = t.Save(ctx, s.sink(name), s.codec); err != nil {
		s.metrics.save(ctx, resultError, time.Since(start))
		return err
	}
	s.metrics.save(ctx, resultSaved, time.Since(start))
	s.log.Debug("saved tape", "tape", name, "interactions", t.Len(), "duration", time.Since(start))
	return nil
}

// With runs fn while holding the named tape's lock, loading the tape first
// if needed. Use it to serialize a group of mutations against Save.
func (s *TapeStore) With(ctx context.Context, name string, fn func(*tape.MemoryTape) error) error {
	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	e, err := s.entry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.tape)
}

// Evict saves the named tape if dirty and drops it from the cache. The tape
// stays cached when the save fails.
func (s *TapeStore) Evict(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.saveLocked(ctx, name, e); err != nil {
		return err
	}

	s.mu.Lock()
	if s.entries[name] == e {
		delete(s.entries, name)
		s.metrics.cached.Add(ctx, -1)
	}
	s.mu.Unlock()
	return nil
}

// Remove deletes the named tape from the backend and the cache. It waits for
// any save of the tape in flight, and the tape is not written again
// afterwards.
func (s *TapeStore) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	e := s.entries[name]
	s.mu.Unlock()

	if e == nil {
		return s.backend.Remove(ctx, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err := s.backend.Remove(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	e.removed = true

	s.mu.Lock()
	if s.entries[name] == e {
		delete(s.entries, name)
		s.metrics.cached.Add(ctx, -1)
	}
	s.mu.Unlock()
	return err
}

// Loaded returns the sorted names of cached tapes.
func (s *TapeStore) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the names of stored tapes matching pattern.
func (s *TapeStore) List(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return s.backend.List(ctx, pattern)
}

// Shutdown saves every dirty tape and closes the backend. Saves run in
// parallel and a failure never stops the others; all failures are reported
// together in a *FlushError. The store is unusable afterwards.
func (s *TapeStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	entries := make(map[string]*entry, len(s.entries))
	for name, e := range s.entries {
		entries[name] = e
	}
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
	s.metrics.cached.Add(ctx, -int64(len(entries)))

	var (
		failMu   sync.Mutex
		failures []*tape.SaveError
	)

	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for name, e := range entries {
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()

			if err := s.saveLocked(ctx, name, e); err != nil {
				s.log.Warn("failed to flush tape", "tape", name, "error", err)
				failMu.Lock()
				failures = append(failures, asSaveError(name, err))
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var flushErr error
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Tape < failures[j].Tape })
		flushErr = &FlushError{Failures: failures}
	}

	if err := s.backend.Close(); err != nil {
		s.log.Warn("failed to close backend", "error", err)
		return errors.Join(flushErr, err)
	}
	s.log.Debug("store shut down", "tapes", len(entries), "failed", len(failures))
	return flushErr
}

func (s *TapeStore) entry(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.entries[name]
	if !ok {
		return nil, ErrNotLoaded
	}
	return e, nil
}

func (s *TapeStore) source(name string) tape.Source {
	return tape.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		return s.backend.Open(ctx, name)
	})
}

func (s *TapeStore) sink(name string) tape.Sink {
	return tape.SinkFunc(func(ctx context.Context) (tape.Blob, error) {
		return s.backend.Create(ctx, name)
	})
}

// startSpan starts a span for a tape operation. The returned function ends
// it, recording err if non-nil.
func (s *TapeStore) startSpan(ctx context.Context, op, name string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tape.name", name),
			attribute.String("tape.codec", s.codec.Name()),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
