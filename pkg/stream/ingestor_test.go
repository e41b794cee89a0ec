package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sse(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

// chunkedReader returns the given pieces one Read at a time
type chunkedReader struct {
	pieces [][]byte
	closed bool
}

func newChunkedReader(raw []byte, cuts ...int) *chunkedReader {
	r := &chunkedReader{}
	prev := 0
	for _, c := range cuts {
		r.pieces = append(r.pieces, raw[prev:c])
		prev = c
	}
	r.pieces = append(r.pieces, raw[prev:])
	return r
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	for len(r.pieces) > 0 && len(r.pieces[0]) == 0 {
		r.pieces = r.pieces[1:]
	}
	if len(r.pieces) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.pieces[0])
	r.pieces[0] = r.pieces[0][n:]
	return n, nil
}

func (r *chunkedReader) Close() error {
	r.closed = true
	return nil
}

func collect(t *testing.T, body io.Reader) ([]string, Result, error) {
	t.Helper()
	var seen []string
	res, err := NewIngestor(Options{ReadTimeout: time.Second}).Ingest(context.Background(), body, func(c string) {
		seen = append(seen, c)
	})
	return seen, res, err
}

func TestIngestCumulativeCallbacks(t *testing.T) {
	body := strings.NewReader(sse(`{"delta":{"content":"Hel"}}`, `{"delta":{"content":"lo"}}`, "[DONE]"))

	seen, res, err := collect(t, body)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "Hello"}, seen)
	assert.Equal(t, "Hello", res.Content)
	assert.True(t, res.Done)
	assert.False(t, res.Canceled)
	assert.Equal(t, 2, res.Deltas)
}

func TestIngestStopsAtDoneSentinel(t *testing.T) {
	raw := []byte(sse(`{"delta":{"content":"a"}}`, "[DONE]", `{"delta":{"content":"ignored"}}`))
	body := newChunkedReader(raw)

	seen, res, err := collect(t, body)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, seen)
	assert.True(t, res.Done)
	assert.True(t, body.closed, "body should be released on [DONE]")
}

func TestIngestMalformedPayload(t *testing.T) {
	body := strings.NewReader(sse(`{"delta":{"content":"ok"}}`, `{not json`, `{"delta":{"content":"late"}}`))

	seen, res, err := collect(t, body)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrStreamFailure))
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "decode", se.Op)
	assert.Equal(t, "ok", se.Partial)

	assert.Equal(t, []string{"ok"}, seen, "no callbacks after the failure")
	assert.Equal(t, "ok", res.Content)
}

func TestIngestSkipsEventsWithoutDelta(t *testing.T) {
	body := strings.NewReader(
		": keepalive\n\n" +
			"event: ping\n\n" +
			sse(`{"id":"x"}`, `{"delta":{"content":"hi"}}`, `{"delta":{"content":""}}`),
	)

	seen, res, err := collect(t, body)
	require.NoError(t, err)

	assert.Equal(t, []string{"hi", "hi"}, seen)
	assert.False(t, res.Done, "EOF without sentinel")
	assert.Equal(t, 2, res.Deltas)
}

func TestIngestCRLFFraming(t *testing.T) {
	raw := "data: {\"delta\":{\"content\":\"x\"}}\r\n\r\ndata: {\"delta\":{\"content\":\"y\"}}\r\n\r\ndata: [DONE]\r\n\r\n"

	seen, res, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "xy"}, seen)
	assert.True(t, res.Done)
}

func TestIngestTrailingEventWithoutDelimiter(t *testing.T) {
	raw := sse(`{"delta":{"content":"a"}}`) + `data: {"delta":{"content":"b"}}`

	seen, _, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ab"}, seen)
}

func TestIngestChunkBoundaryIndependence(t *testing.T) {
	raw := []byte(sse(
		`{"delta":{"content":"héllo "}}`,
		`{"delta":{"content":"世界 "}}`,
		`{"delta":{"content":"🙂👍"}}`,
		`{"delta":{"content":" done"}}`,
		"[DONE]",
	))

	expected, _, err := collect(t, newChunkedReader(raw))
	require.NoError(t, err)
	require.Len(t, expected, 4)

	t.Run("every two-way split", func(t *testing.T) {
		for cut := 1; cut < len(raw); cut++ {
			seen, res, err := collect(t, newChunkedReader(raw, cut))
			require.NoError(t, err, "cut at %d", cut)
			assert.Equal(t, expected, seen, "cut at %d", cut)
			assert.True(t, utf8.ValidString(res.Content))
		}
	})

	t.Run("random multi-way splits", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			cuts := []int{}
			pos := 0
			for {
				pos += 1 + rng.Intn(7)
				if pos >= len(raw) {
					break
				}
				cuts = append(cuts, pos)
			}
			seen, _, err := collect(t, newChunkedReader(raw, cuts...))
			require.NoError(t, err)
			assert.Equal(t, expected, seen, "cuts %v", cuts)
		}
	})

	t.Run("one byte at a time", func(t *testing.T) {
		seen, _, err := collect(t, iotest.OneByteReader(strings.NewReader(string(raw))))
		require.NoError(t, err)
		assert.Equal(t, expected, seen)
	})
}

func TestIngestCallbacksGrowMonotonically(t *testing.T) {
	raw := sse(`{"delta":{"content":"one "}}`, `{"delta":{"content":"two "}}`, `{"delta":{"content":"three"}}`)

	seen, _, err := collect(t, iotest.HalfReader(strings.NewReader(raw)))
	require.NoError(t, err)

	for i := 1; i < len(seen); i++ {
		assert.True(t, strings.HasPrefix(seen[i], seen[i-1]))
		assert.GreaterOrEqual(t, len(seen[i]), len(seen[i-1]))
	}
}

func TestIngestNilBody(t *testing.T) {
	_, err := NewIngestor(Options{}).Ingest(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamFailure))
	assert.True(t, errors.Is(err, ErrNoBody))
}

func TestIngestTypedNilBody(t *testing.T) {
	var body *bytes.Reader
	_, err := NewIngestor(Options{}).Ingest(context.Background(), body, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBody))
}

// stallingBody serves its data then blocks in Read until closed
type stallingBody struct {
	data      []byte
	closed    chan struct{}
	released  chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func newStallingBody(data string) *stallingBody {
	return &stallingBody{data: []byte(data), closed: make(chan struct{}), released: make(chan struct{})}
}

func (b *stallingBody) Read(p []byte) (int, error) {
	if len(b.data) > 0 {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	<-b.closed
	b.doneOnce.Do(func() { close(b.released) })
	return 0, io.ErrClosedPipe
}

func (b *stallingBody) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func TestIngestReleasesReaderAfterSentinel(t *testing.T) {
	body := newStallingBody(sse(`{"delta":{"content":"hi"}}`, "[DONE]"))

	res, err := NewIngestor(Options{}).Ingest(context.Background(), body, nil)
	require.NoError(t, err)
	assert.True(t, res.Done)

	select {
	case <-body.released:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine still blocked after [DONE]")
	}
}

func TestIngestReadError(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(strings.NewReader(sse(`{"delta":{"content":"part"}}`)), iotest.ErrReader(boom))

	seen, _, err := collect(t, body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamFailure))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"part"}, seen)
}

func TestIngestReadTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	go func() {
		pw.Write([]byte(sse(`{"delta":{"content":"first"}}`)))
		// then stall
	}()

	var seen []string
	in := NewIngestor(Options{ReadTimeout: 50 * time.Millisecond})
	_, err := in.Ingest(context.Background(), pr, func(c string) { seen = append(seen, c) })

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadTimeout))
	assert.Equal(t, []string{"first"}, seen)
}

func TestIngestCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		pw.Write([]byte(sse(`{"delta":{"content":"a"}}`)))
	}()

	var seen []string
	done := make(chan struct{})
	var res Result
	var err error
	go func() {
		defer close(done)
		res, err = NewIngestor(Options{}).Ingest(ctx, pr, func(c string) {
			seen = append(seen, c)
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not stop after cancel")
	}

	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, []string{"a"}, seen)

	// the body was closed, so writers see an error
	_, werr := pw.Write([]byte("data: x\n\n"))
	assert.Error(t, werr)
}

func TestIngestCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res, err := NewIngestor(Options{}).Ingest(ctx, strings.NewReader(sse(`{"delta":{"content":"a"}}`)), func(string) { calls++ })
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Zero(t, calls)
}
