// Package stream folds an event-stream response body into a growing
// message, calling back with the cumulative content after every delta.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/killallgit/chatnote/pkg/logger"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	defaultChunkSize = 4096
)

var eventDelimiter = []byte("\n\n")

// ApplyFunc receives the cumulative message content after each delta
type ApplyFunc func(cumulative string)

// Event is the JSON payload carried by a data line
type Event struct {
	Delta *Delta `json:"delta"`
}

// Delta is an incremental fragment of assistant text
type Delta struct {
	Content string `json:"content"`
}

// Options configures an Ingestor
type Options struct {
	// ReadTimeout bounds each chunk read. Zero waits forever.
	ReadTimeout time.Duration
	// ChunkSize is the read buffer size
	ChunkSize int
}

// Result summarises a finished stream
type Result struct {
	Content  string
	Events   int
	Deltas   int
	Done     bool // the [DONE] sentinel was seen
	Canceled bool
}

// Ingestor reads event streams
type Ingestor struct {
	opts Options
}

// NewIngestor creates an Ingestor
func NewIngestor(opts Options) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	return &Ingestor{opts: opts}
}

type readResult struct {
	data []byte
	err  error
}

var errCanceled = errors.New("canceled")

// Ingest reads body until EOF or the [DONE] sentinel, calling apply with the
// cumulative content after each delta. Deltas are applied in arrival order.
//
// On [DONE] the body is closed without draining the rest of the stream.
// Cancelling ctx stops reading and callbacks and returns a Result with
// Canceled set and a nil error. Every failure is a *StreamError.
//
// Reads happen on a separate goroutine. When Ingest returns early it closes
// the body to release that goroutine, so a body that is not an io.Closer
// must end on its own or the goroutine stays blocked in Read.
func (in *Ingestor) Ingest(ctx context.Context, body io.Reader, apply ApplyFunc) (Result, error) {
	if isNil(body) {
		return Result{}, &StreamError{Op: "open", Err: ErrNoBody}
	}
	if apply == nil {
		apply = func(string) {}
	}

	closeBody := func() {
		if c, ok := body.(io.Closer); ok {
			c.Close()
		}
	}

	f := &folder{ctx: ctx, apply: apply}
	decoded := transform.NewReader(body, unicode.UTF8.NewDecoder())

	chunks := make(chan readResult)
	stop := make(chan struct{})
	defer close(stop)
	go pump(decoded, in.opts.ChunkSize, chunks, stop)

	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		if in.opts.ReadTimeout > 0 {
			timer = time.NewTimer(in.opts.ReadTimeout)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			closeBody()
			logger.Debug("stream canceled after %d events", f.events)
			return f.result(false, true), nil

		case <-timeout:
			closeBody()
			return f.result(false, false), &StreamError{Op: "read", Partial: f.content.String(), Err: ErrReadTimeout}

		case r := <-chunks:
			stopTimer(timer)

			if len(r.data) > 0 {
				done, err := f.feed(r.data)
				if errors.Is(err, errCanceled) {
					closeBody()
					return f.result(false, true), nil
				}
				if err != nil {
					closeBody()
					return f.result(false, false), err
				}
				if done {
					closeBody()
					logger.Debug("stream finished with sentinel after %d events", f.events)
					return f.result(true, false), nil
				}
			}

			if r.err == io.EOF {
				done, err := f.flush()
				if errors.Is(err, errCanceled) {
					return f.result(false, true), nil
				}
				if err != nil {
					return f.result(false, false), err
				}
				logger.Debug("stream reached EOF after %d events", f.events)
				return f.result(done, false), nil
			}
			if r.err != nil {
				closeBody()
				return f.result(false, false), &StreamError{Op: "read", Partial: f.content.String(), Err: r.err}
			}
		}
	}
}

// isNil also catches a nil pointer stored in the interface
func isNil(r io.Reader) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// pump moves chunks from r to out until an error or until stop closes
func pump(r io.Reader, size int, out chan<- readResult, stop <-chan struct{}) {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		select {
		case out <- readResult{data: buf[:n], err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// folder splits decoded bytes into events and folds deltas into content
type folder struct {
	ctx     context.Context
	apply   ApplyFunc
	pending []byte
	content strings.Builder
	events  int
	deltas  int
}

func (f *folder) result(done, canceled bool) Result {
	return Result{
		Content:  f.content.String(),
		Events:   f.events,
		Deltas:   f.deltas,
		Done:     done,
		Canceled: canceled,
	}
}

// feed appends data and processes every complete event in the buffer.
// Splitting happens on bytes, so a rune split across reads is rejoined
// before it is ever converted to a string.
func (f *folder) feed(data []byte) (bool, error) {
	// JSON payloads cannot hold a raw CR, so dropping them turns CRLF
	// framing into LF framing even when the pair spans two reads.
	f.pending = append(f.pending, bytes.ReplaceAll(data, []byte("\r"), nil)...)

	consumed := 0
	defer func() {
		f.pending = append(f.pending[:0], f.pending[consumed:]...)
	}()

	for {
		i := bytes.Index(f.pending[consumed:], eventDelimiter)
		if i < 0 {
			return false, nil
		}
		block := string(f.pending[consumed : consumed+i])
		consumed += i + len(eventDelimiter)

		done, err := f.event(block)
		if err != nil || done {
			return done, err
		}
	}
}

// flush processes an unterminated trailing event at EOF
func (f *folder) flush() (bool, error) {
	block := string(f.pending)
	f.pending = nil
	if strings.TrimSpace(block) == "" {
		return false, nil
	}
	return f.event(block)
}

func (f *folder) event(block string) (bool, error) {
	f.events++

	for _, line := range strings.Split(block, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == doneSentinel {
			return true, nil
		}

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return false, &StreamError{Op: "decode", Partial: f.content.String(), Err: err}
		}
		if ev.Delta == nil {
			continue
		}

		if f.ctx.Err() != nil {
			return false, errCanceled
		}

		f.content.WriteString(ev.Delta.Content)
		f.deltas++
		f.apply(f.content.String())
	}

	return false, nil
}
