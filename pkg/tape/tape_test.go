package tape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonCodec is a minimal codec for exercising Load and Save in isolation.
type jsonCodec struct{}

func (jsonCodec) Name() string      { return "json" }
func (jsonCodec) Extension() string { return ".json" }

func (jsonCodec) Encode(w io.Writer, doc *Document) error {
	return json.NewEncoder(w).Encode(doc)
}

func (jsonCodec) Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// memStore holds committed content and implements Source and Sink.
type memStore struct {
	data      []byte
	exists    bool
	createErr error
	commitErr error
	onCreate  func()
	commits   int
}

func (m *memStore) Open(context.Context) (io.ReadCloser, error) {
	if !m.exists {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *memStore) Create(context.Context) (Blob, error) {
	if m.onCreate != nil {
		m.onCreate()
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &memBlob{store: m}, nil
}

type memBlob struct {
	store *memStore
	buf   bytes.Buffer
	done  bool
}

func (b *memBlob) Write(p []byte) (int, error) { return b.buf.Write(p) }

func (b *memBlob) Commit() error {
	if b.store.commitErr != nil {
		return b.store.commitErr
	}
	b.store.data = append([]byte(nil), b.buf.Bytes()...)
	b.store.exists = true
	b.store.commits++
	b.done = true
	return nil
}

func (b *memBlob) Close() error { return nil }

func getReq(url string) Request {
	return Request{Method: http.MethodGet, URL: url}
}

func okResp(body string) Response {
	return Response{StatusCode: http.StatusOK, Status: "200 OK", Body: []byte(body)}
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestNew_Defaults(t *testing.T) {
	tp := New("github")

	assert.Equal(t, "github", tp.Name())
	assert.Equal(t, ModeReadWrite, tp.Mode())
	assert.Equal(t, ReplayIdempotent, tp.Replay())
	assert.False(t, tp.IsDirty())
	assert.Equal(t, 0, tp.Len())
	assert.Empty(t, tp.Interactions())
}

func TestRecordSeekPlay(t *testing.T) {
	tp := New("github", WithClock(fixedClock()), WithIDGenerator(sequentialIDs()))

	in, err := tp.Record(getReq("https://api.github.com/users/octocat"), okResp(`{"login":"octocat"}`))
	require.NoError(t, err)
	assert.Equal(t, "id-1", in.ID)
	assert.Equal(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), in.Recorded)
	assert.True(t, tp.IsDirty())
	assert.Equal(t, 1, tp.Len())

	found, ok := tp.Seek(getReq("https://api.github.com/users/octocat"))
	require.True(t, ok)
	assert.Equal(t, "id-1", found.ID)

	resp := tp.Play(found)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"login":"octocat"}`, string(resp.Body))

	_, ok = tp.Seek(getReq("https://api.github.com/users/other"))
	assert.False(t, ok)

	_, ok = tp.Seek(Request{Method: "get", URL: "https://api.github.com/users/octocat"})
	assert.True(t, ok, "method comparison is case-insensitive")
}

func TestRecord_DefensiveCopies(t *testing.T) {
	tp := New("copies")
	req := getReq("http://example.com/")
	req.Headers = http.Header{"Accept": {"text/plain"}}
	resp := okResp("hello")

	_, err := tp.Record(req, resp)
	require.NoError(t, err)

	req.Headers.Set("Accept", "changed")
	resp.Body[0] = 'j'

	got := tp.Interactions()[0]
	assert.Equal(t, "text/plain", got.Request.Headers.Get("Accept"))
	assert.Equal(t, "hello", string(got.Response.Body))

	got.Response.Body[0] = 'x'
	assert.Equal(t, "hello", string(tp.Interactions()[0].Response.Body))
}

func TestSeek_FirstMatchWins(t *testing.T) {
	tp := New("dupes", WithIDGenerator(sequentialIDs()))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("first"))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("second"))

	for i := 0; i < 3; i++ {
		in, ok := tp.Seek(getReq("http://example.com/a"))
		require.True(t, ok)
		assert.Equal(t, "id-1", in.ID)
	}
}

func TestSeek_Sequential(t *testing.T) {
	tp := New("seq", WithReplay(ReplaySequential), WithIDGenerator(sequentialIDs()))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("first"))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("second"))

	in, ok := tp.Seek(getReq("http://example.com/a"))
	require.True(t, ok)
	assert.Equal(t, "id-1", in.ID)

	in, ok = tp.Seek(getReq("http://example.com/a"))
	require.True(t, ok)
	assert.Equal(t, "id-2", in.ID)

	_, ok = tp.Seek(getReq("http://example.com/a"))
	assert.False(t, ok, "all matching interactions have been played")

	tp.Rewind()
	in, ok = tp.Seek(getReq("http://example.com/a"))
	require.True(t, ok)
	assert.Equal(t, "id-1", in.ID)
}

func TestSeek_DoesNotDirty(t *testing.T) {
	tp := New("clean", WithReplay(ReplaySequential))
	_, _ = tp.Record(getReq("http://example.com/"), okResp("x"))
	store := &memStore{}
	require.NoError(t, tp.Save(context.Background(), store, jsonCodec{}))
	require.False(t, tp.IsDirty())

	_, ok := tp.Seek(getReq("http://example.com/"))
	require.True(t, ok)
	tp.Rewind()
	assert.False(t, tp.IsDirty())
}

func TestWithRule(t *testing.T) {
	anyGet := MatchFunc(func(recorded, live Request) bool {
		return recorded.Method == live.Method
	})
	tp := New("rule", WithRule(anyGet))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("x"))

	_, ok := tp.Seek(getReq("http://example.com/b"))
	assert.True(t, ok)

	_, ok = tp.Seek(Request{Method: http.MethodPost, URL: "http://example.com/a"})
	assert.False(t, ok)
}

func TestModes(t *testing.T) {
	tests := []struct {
		mode      Mode
		canRecord bool
		canSeek   bool
	}{
		{ModeReadWrite, true, true},
		{ModeReadOnly, false, true},
		{ModeReadOnlyArchive, false, true},
		{ModeWriteOnly, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			store := &memStore{}
			seed := New("modes", WithIDGenerator(sequentialIDs()))
			_, _ = seed.Record(getReq("http://example.com/"), okResp("x"))
			require.NoError(t, seed.Save(context.Background(), store, jsonCodec{}))

			tp := New("modes", WithMode(tt.mode))
			require.NoError(t, tp.Load(context.Background(), store, jsonCodec{}))

			_, ok := tp.Seek(getReq("http://example.com/"))
			assert.Equal(t, tt.canSeek, ok)

			_, err := tp.Record(getReq("http://example.com/new"), okResp("y"))
			if tt.canRecord {
				require.NoError(t, err)
				assert.True(t, tp.IsDirty())
				return
			}

			var roErr *ReadOnlyError
			require.ErrorAs(t, err, &roErr)
			assert.Equal(t, tt.mode, roErr.Mode)
			assert.Equal(t, "record", roErr.Op)
			assert.False(t, tp.IsDirty())
			assert.Equal(t, 1, tp.Len())

			err = tp.Delete("id-1")
			require.ErrorAs(t, err, &roErr)
			assert.Equal(t, "delete", roErr.Op)
			assert.Equal(t, 1, tp.Len())
		})
	}
}

func TestDelete(t *testing.T) {
	tp := New("delete", WithIDGenerator(sequentialIDs()))
	_, _ = tp.Record(getReq("http://example.com/a"), okResp("a"))
	_, _ = tp.Record(getReq("http://example.com/b"), okResp("b"))
	require.NoError(t, tp.Save(context.Background(), &memStore{}, jsonCodec{}))

	require.NoError(t, tp.Delete("id-1"))
	assert.True(t, tp.IsDirty())
	assert.Equal(t, 1, tp.Len())
	assert.Equal(t, "id-2", tp.Interactions()[0].ID)

	err := tp.Delete("id-1")
	assert.ErrorIs(t, err, ErrInteractionNotFound)
}

func TestDirty_Transitions(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tp := New("dirty")

	assert.False(t, tp.IsDirty(), "fresh tape is clean")

	_, err := tp.Record(getReq("http://example.com/"), okResp("x"))
	require.NoError(t, err)
	assert.True(t, tp.IsDirty(), "record dirties")

	require.NoError(t, tp.Save(ctx, store, jsonCodec{}))
	assert.False(t, tp.IsDirty(), "save cleans")
	assert.Equal(t, 1, store.commits)

	_, err = tp.Record(getReq("http://example.com/2"), okResp("y"))
	require.NoError(t, err)
	require.True(t, tp.IsDirty())

	require.NoError(t, tp.Load(ctx, store, jsonCodec{}))
	assert.False(t, tp.IsDirty(), "load cleans and discards unsaved changes")
	assert.Equal(t, 1, tp.Len())
}

func TestSave_CleanTapeStillWrites(t *testing.T) {
	store := &memStore{}
	tp := New("empty")

	require.NoError(t, tp.Save(context.Background(), store, jsonCodec{}))
	assert.True(t, store.exists)
	assert.False(t, tp.IsDirty())
}

func TestSave_FailureKeepsDirty(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
	}{
		{"create fails", &memStore{createErr: errors.New("disk full")}},
		{"commit fails", &memStore{commitErr: errors.New("rename failed")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := New("failing")
			_, _ = tp.Record(getReq("http://example.com/"), okResp("x"))

			err := tp.Save(context.Background(), tt.store, jsonCodec{})
			var saveErr *SaveError
			require.ErrorAs(t, err, &saveErr)
			assert.Equal(t, "failing", saveErr.Tape)
			assert.True(t, tp.IsDirty())
			assert.False(t, tt.store.exists)
		})
	}
}

func TestSave_ConcurrentMutationKeepsDirty(t *testing.T) {
	tp := New("racing")
	_, _ = tp.Record(getReq("http://example.com/1"), okResp("x"))

	store := &memStore{}
	store.onCreate = func() {
		// A mutation that lands after the snapshot was taken.
		_, _ = tp.Record(getReq("http://example.com/2"), okResp("y"))
	}

	require.NoError(t, tp.Save(context.Background(), store, jsonCodec{}))
	assert.True(t, tp.IsDirty())
	assert.Equal(t, 2, tp.Len())

	var doc Document
	require.NoError(t, json.Unmarshal(store.data, &doc))
	assert.Len(t, doc.Interactions, 1)

	store.onCreate = nil
	require.NoError(t, tp.Save(context.Background(), store, jsonCodec{}))
	assert.False(t, tp.IsDirty())
}

func TestLoad_Failures(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		tp := New("missing")
		err := tp.Load(context.Background(), &memStore{}, jsonCodec{})
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, "missing", loadErr.Tape)
	})

	t.Run("malformed leaves tape untouched", func(t *testing.T) {
		tp := New("broken")
		_, _ = tp.Record(getReq("http://example.com/"), okResp("x"))

		err := tp.Load(context.Background(), &memStore{exists: true, data: []byte("{not json")}, jsonCodec{})
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.True(t, tp.IsDirty())
		assert.Equal(t, 1, tp.Len())
	})
}

// Record, save, reload into a fresh tape and replay.
func TestRoundTrip_ReplayAfterReload(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}

	rec := New("github")
	_, err := rec.Record(getReq("https://api.github.com/users/octocat"), okResp(`{"login":"octocat"}`))
	require.NoError(t, err)
	require.NoError(t, rec.Save(ctx, store, jsonCodec{}))

	play := New("github", WithMode(ModeReadOnly))
	require.NoError(t, play.Load(ctx, store, jsonCodec{}))
	assert.False(t, play.IsDirty())

	in, ok := play.Seek(getReq("https://api.github.com/users/octocat"))
	require.True(t, ok)
	assert.Equal(t, `{"login":"octocat"}`, string(play.Play(in).Body))
	assert.Equal(t, rec.Interactions(), play.Interactions())
}

func TestRecordSaveLoad_SeekAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}

	tp := New("pages", WithMode(ModeReadWrite))
	_, err := tp.Record(getReq("https://example.com/a"), okResp("a"))
	require.NoError(t, err)
	_, err = tp.Record(getReq("https://example.com/b"), Response{StatusCode: http.StatusNotFound})
	require.NoError(t, err)

	in, ok := tp.Seek(getReq("https://example.com/a"))
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, in.Response.StatusCode)
	assert.True(t, tp.IsDirty())

	require.NoError(t, tp.Save(ctx, store, jsonCodec{}))

	fresh := New("pages", WithMode(ModeReadWrite))
	require.NoError(t, fresh.Load(ctx, store, jsonCodec{}))
	in, ok = fresh.Seek(getReq("https://example.com/b"))
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, in.Response.StatusCode)
	assert.False(t, fresh.IsDirty())
}

func TestCaptureRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/users?page=2", nil)
	require.NoError(t, err)
	req.Host = "api.example.com"
	req.Header.Set("Content-Type", "application/json")

	got := CaptureRequest(req, []byte(`{"a":1}`))
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "http://api.example.com/users?page=2", got.URL)
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(got.Body))
}

func TestResponseHTTP(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	resp := Response{StatusCode: http.StatusNotFound, Body: []byte("missing")}.HTTP(req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404 Not Found", resp.Status)
	assert.Same(t, req, resp.Request)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "missing", string(body))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"read-only", ModeReadOnly, false},
		{"READ_WRITE", ModeReadWrite, false},
		{"read-only-archive", ModeReadOnlyArchive, false},
		{"write-only", ModeWriteOnly, false},
		{"append", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
