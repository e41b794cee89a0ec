// Package testutil provides fake chat streams for tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/chatnote/pkg/api"
)

// ErrInjected is returned by a FakeStreamBody told to fail
var ErrInjected = errors.New("injected stream failure")

// Event encodes one data line carrying a content delta
func Event(content string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"delta": map[string]string{"content": content},
	})
	return "data: " + string(data) + "\n\n"
}

// SSE builds an event stream of deltas terminated by [DONE]
func SSE(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(Event(d))
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// FakeStreamBody serves a payload in fixed size chunks
type FakeStreamBody struct {
	mu         sync.Mutex
	payload    []byte
	chunkSize  int
	chunkDelay time.Duration
	failAfter  int
	reads      int
	closed     bool
}

type BodyOption func(*FakeStreamBody)

// WithChunkSize sets the bytes returned per Read
func WithChunkSize(n int) BodyOption {
	return func(b *FakeStreamBody) { b.chunkSize = n }
}

func WithChunkDelay(d time.Duration) BodyOption {
	return func(b *FakeStreamBody) { b.chunkDelay = d }
}

// WithFailAfter makes the body fail with ErrInjected after n chunks
func WithFailAfter(n int) BodyOption {
	return func(b *FakeStreamBody) { b.failAfter = n }
}

func NewStreamBody(payload string, opts ...BodyOption) *FakeStreamBody {
	b := &FakeStreamBody{payload: []byte(payload), chunkSize: 5}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *FakeStreamBody) Read(p []byte) (int, error) {
	if b.chunkDelay > 0 {
		time.Sleep(b.chunkDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if b.failAfter > 0 && b.reads >= b.failAfter {
		return 0, ErrInjected
	}
	if len(b.payload) == 0 {
		return 0, io.EOF
	}

	n := b.chunkSize
	if n <= 0 || n > len(b.payload) {
		n = len(b.payload)
	}
	n = copy(p, b.payload[:n])
	b.payload = b.payload[n:]
	b.reads++
	return n, nil
}

func (b *FakeStreamBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called
func (b *FakeStreamBody) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// FakeChatBackend answers chat requests with canned streams and records
// what it was sent
type FakeChatBackend struct {
	mu sync.Mutex

	// Bodies are served in order, then empty streams
	Bodies      []*FakeStreamBody
	OpenErr     error
	Histories   map[string][]api.HistoryMessage
	SessionList []api.Session

	requests []api.ChatRequest
	served   int
}

// NewFakeChatBackend replies to each request with the next payload
func NewFakeChatBackend(payloads ...string) *FakeChatBackend {
	f := &FakeChatBackend{Histories: map[string][]api.HistoryMessage{}}
	for _, p := range payloads {
		f.Bodies = append(f.Bodies, NewStreamBody(p))
	}
	return f
}

func (f *FakeChatBackend) OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.served >= len(f.Bodies) {
		return NewStreamBody(""), nil
	}
	body := f.Bodies[f.served]
	f.served++
	return body, nil
}

func (f *FakeChatBackend) Sessions(ctx context.Context) ([]api.Session, error) {
	return f.SessionList, nil
}

func (f *FakeChatBackend) History(ctx context.Context, id string) ([]api.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.Histories[id]
	if !ok {
		return nil, &api.RequestError{Status: 404, Message: "no such chat"}
	}
	return h, nil
}

// Requests returns the chat requests received so far
func (f *FakeChatBackend) Requests() []api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ChatRequest(nil), f.requests...)
}

// LastRequest returns the most recent chat request
func (f *FakeChatBackend) LastRequest() api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return api.ChatRequest{}
	}
	return f.requests[len(f.requests)-1]
}
