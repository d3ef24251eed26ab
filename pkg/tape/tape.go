package tape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tape is the replay and recording capability of a tape.
type Tape interface {
	Name() string
	Mode() Mode

	// Seek returns the recorded interaction matching req, if any. A miss is
	// not an error.
	Seek(req Request) (Interaction, bool)

	// Record appends a new interaction. It fails with *ReadOnlyError when the
	// mode does not allow writes.
	Record(req Request, resp Response) (Interaction, error)

	// Play returns the response to replay for a recorded interaction.
	Play(in Interaction) Response

	// Delete removes an interaction by ID.
	Delete(id string) error

	Interactions() []Interaction
	Len() int
}

// Storable is a Tape that can be read from and written to a backing store.
type Storable interface {
	Tape

	// IsDirty reports whether the tape content has changed since it was last
	// loaded or saved.
	IsDirty() bool

	Load(ctx context.Context, src Source, c Codec) error
	Save(ctx context.Context, dst Sink, c Codec) error
}

// MatchRule decides whether a live request corresponds to a recorded one.
type MatchRule interface {
	Matches(recorded, live Request) bool
}

// MatchFunc adapts a function to MatchRule.
type MatchFunc func(recorded, live Request) bool

// Matches calls f(recorded, live).
func (f MatchFunc) Matches(recorded, live Request) bool { return f(recorded, live) }

// exactMethodURL is used when no rule is configured.
var exactMethodURL = MatchFunc(func(recorded, live Request) bool {
	return strings.EqualFold(recorded.Method, live.Method) && recorded.URL == live.URL
})

var (
	_ Tape     = (*MemoryTape)(nil)
	_ Storable = (*MemoryTape)(nil)
)

// MemoryTape is an in-memory Storable tape.
type MemoryTape struct {
	name   string
	mode   Mode
	replay ReplayPolicy
	rule   MatchRule
	now    func() time.Time
	newID  func() string

	mu           sync.RWMutex
	interactions []Interaction
	played       []bool
	dirty        bool
	generation   uint64
}

// Option configures a MemoryTape.
type Option func(*MemoryTape)

// WithMode sets the tape mode. The default is ModeReadWrite.
func WithMode(m Mode) Option {
	return func(t *MemoryTape) { t.mode = m }
}

// WithReplay sets the replay policy. The default is ReplayIdempotent.
func WithReplay(p ReplayPolicy) Option {
	return func(t *MemoryTape) { t.replay = p }
}

// WithRule sets the match rule. The default matches method and URL exactly.
func WithRule(r MatchRule) Option {
	return func(t *MemoryTape) {
		if r != nil {
			t.rule = r
		}
	}
}

// WithClock sets the clock used to timestamp recordings.
func WithClock(now func() time.Time) Option {
	return func(t *MemoryTape) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIDGenerator sets the interaction ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(t *MemoryTape) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// New creates an empty, clean tape.
func New(name string, opts ...Option) *MemoryTape {
	t := &MemoryTape{
		name:   name,
		mode:   ModeReadWrite,
		replay: ReplayIdempotent,
		rule:   exactMethodURL,
		now:    time.Now,
		newID:  newInteractionID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// newInteractionID returns a time-ordered UUID so IDs sort like the tape.
func newInteractionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Name returns the tape name.
func (t *MemoryTape) Name() string { return t.name }

// Mode returns the tape mode.
func (t *MemoryTape) Mode() Mode { return t.mode }

// Replay returns the replay policy.
func (t *MemoryTape) Replay() ReplayPolicy { return t.replay }

// Seek implements Tape.
func (t *MemoryTape) Seek(req Request) (Interaction, bool) {
	if !t.mode.Readable() {
		return Interaction{}, false
	}

	if t.replay == ReplaySequential {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i := range t.interactions {
			if t.played[i] || !t.rule.Matches(t.interactions[i].Request, req) {
				continue
			}
			t.played[i] = true
			return t.interactions[i].Clone(), true
		}
		return Interaction{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.interactions {
		if t.rule.Matches(t.interactions[i].Request, req) {
			return t.interactions[i].Clone(), true
		}
	}
	return Interaction{}, false
}

// Record implements Tape.
func (t *MemoryTape) Record(req Request, resp Response) (Interaction, error) {
	return t.RecordWithDuration(req, resp, 0)
}

// RecordWithDuration records an interaction together with the upstream
// round-trip time.
func (t *MemoryTape) RecordWithDuration(req Request, resp Response, d time.Duration) (Interaction, error) {
	if !t.mode.Writable() {
		return Interaction{}, &ReadOnlyError{Tape: t.name, Mode: t.mode, Op: "record"}
	}

	in := Interaction{
		ID:       t.newID(),
		Recorded: t.now().UTC().Round(0),
		Request:  req.Clone(),
		Response: resp.Clone(),
		Duration: d,
	}

	t.mu.Lock()
	t.interactions = append(t.interactions, in)
	t.played = append(t.played, false)
	t.touchLocked()
	t.mu.Unlock()

	return in.Clone(), nil
}

// Play implements Tape.
func (t *MemoryTape) Play(in Interaction) Response {
	return in.Response.Clone()
}

// Delete implements Tape.
func (t *MemoryTape) Delete(id string) error {
	if !t.mode.Writable() {
		return &ReadOnlyError{Tape: t.name, Mode: t.mode, Op: "delete"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.interactions {
		if t.interactions[i].ID != id {
			continue
		}
		t.interactions = append(t.interactions[:i], t.interactions[i+1:]...)
		t.played = append(t.played[:i], t.played[i+1:]...)
		t.touchLocked()
		return nil
	}
	return ErrInteractionNotFound
}

// Interactions returns a copy of the recorded interactions in order.
func (t *MemoryTape) Interactions() []Interaction {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Interaction, len(t.interactions))
	for i := range t.interactions {
		out[i] = t.interactions[i].Clone()
	}
	return out
}

// Len returns the number of recorded interactions.
func (t *MemoryTape) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.interactions)
}

// Rewind resets the sequential replay cursor.
func (t *MemoryTape) Rewind() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.played = make([]bool, len(t.interactions))
}

// IsDirty implements Storable.
func (t *MemoryTape) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// Snapshot returns the serializable form of the tape.
func (t *MemoryTape) Snapshot() *Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.documentLocked()
}

// touchLocked records a mutation. Caller must hold t.mu.
func (t *MemoryTape) touchLocked() {
	t.dirty = true
	t.generation++
}

func (t *MemoryTape) documentLocked() *Document {
	doc := &Document{
		Version:      FormatVersion,
		Name:         t.name,
		Interactions: make([]Interaction, len(t.interactions)),
	}
	for i := range t.interactions {
		doc.Interactions[i] = t.interactions[i].Clone()
	}
	return doc
}
