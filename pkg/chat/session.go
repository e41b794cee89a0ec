// Package chat runs a conversation against the streaming chat endpoint.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/killallgit/chatnote/pkg/stream"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrStreamInProgress = errors.New("a reply is still streaming")
)

// DefaultFallbackMessage is appended to the transcript when a reply fails
const DefaultFallbackMessage = "Sorry, something went wrong. Please try again later."

// Backend is the part of the API the session needs
type Backend interface {
	OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
	Sessions(ctx context.Context) ([]api.Session, error)
	History(ctx context.Context, conversationID string) ([]api.HistoryMessage, error)
}

// DraftClearer drops the saved input of a conversation once it was sent
type DraftClearer interface {
	Clear(conversationID string)
}

// Observer receives a transcript snapshot after every change
type Observer func(Conversation)

type SessionOptions struct {
	Model           string
	Ingestor        *stream.Ingestor
	Drafts          DraftClearer
	Observer        Observer
	FallbackMessage string
}

// Session owns the transcript of the selected conversation. At most one
// reply streams at a time.
type Session struct {
	backend  Backend
	ingestor *stream.Ingestor
	drafts   DraftClearer
	observer Observer
	fallback string

	mu        sync.Mutex
	conv      Conversation
	streaming bool
}

func NewSession(backend Backend, conversationID string, opts SessionOptions) *Session {
	s := &Session{
		backend:  backend,
		ingestor: opts.Ingestor,
		drafts:   opts.Drafts,
		observer: opts.Observer,
		fallback: opts.FallbackMessage,
		conv:     NewConversation(conversationID, opts.Model),
	}
	if s.ingestor == nil {
		s.ingestor = stream.NewIngestor(stream.Options{})
	}
	if s.fallback == "" {
		s.fallback = DefaultFallbackMessage
	}
	return s
}

// ID returns the selected conversation's identifier
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// Conversation returns a snapshot of the transcript
func (s *Session) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Messages() []Message {
	return GetMessages(s.Conversation())
}

// Streaming reports whether a reply is in flight
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Send appends text as a user message and streams the assistant's reply
// into a placeholder message. Partial content is kept when the stream
// fails or ctx is cancelled; cancellation is not an error.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrStreamInProgress
	}
	s.streaming = true

	req := api.ChatRequest{
		Model: s.conv.Model,
		ID:    s.conv.ID,
	}
	for _, msg := range s.conv.Messages {
		if msg.IsUser() || msg.IsAssistant() {
			req.Messages = append(req.Messages, api.ChatMessage{Role: api.Role(msg.Role), Content: msg.Content})
		}
	}
	req.Messages = append(req.Messages, api.ChatMessage{Role: api.RoleUser, Content: text})

	if s.conv.Title == "" {
		s.conv.Title = titleFrom(text)
	}
	s.conv = AddMessage(s.conv, NewUserMessage(text))
	placeholder := NewAssistantMessage("")
	s.conv = AddMessage(s.conv, placeholder)
	conversationID := s.conv.ID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
	}()
	s.notify(snap)

	start := time.Now()
	body, err := s.backend.OpenChatStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("chat %s canceled before the stream opened", conversationID)
			return nil
		}
		return s.fail(conversationID, err)
	}
	defer body.Close()

	result, err := s.ingestor.Ingest(ctx, body, func(cumulative string) {
		s.replace(placeholder.ID, cumulative)
	})
	if err != nil {
		return s.fail(conversationID, err)
	}
	if result.Canceled {
		logger.Debug("chat %s canceled after %d deltas", conversationID, result.Deltas)
		return nil
	}

	logger.Info("chat %s reply complete: %d bytes in %s", conversationID, len(result.Content), time.Since(start).Round(time.Millisecond))
	if s.drafts != nil {
		s.drafts.Clear(conversationID)
	}
	return nil
}

// Select switches to another conversation and loads its history
func (s *Session) Select(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrStreamInProgress
	}
	s.conv = NewConversation(conversationID, s.conv.Model)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	history, err := s.backend.History(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conv.ID != conversationID {
		s.mu.Unlock()
		return nil
	}
	for _, h := range history {
		msg := Message{ID: h.ID, Role: string(h.Role), Content: h.Content}
		if msg.ID == "" {
			msg.ID = newMessageID()
		}
		if t, err := time.Parse(time.RFC3339, h.CreatedAt); err == nil {
			msg.CreatedAt = t
		}
		s.conv = AddMessage(s.conv, msg)
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Sessions lists the conversations known to the server
func (s *Session) Sessions(ctx context.Context) ([]api.Session, error) {
	return s.backend.Sessions(ctx)
}

func (s *Session) replace(id, content string) {
	s.mu.Lock()
	s.conv = ReplaceContent(s.conv, id, content)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// fail appends the fallback reply and hands the error back once
func (s *Session) fail(conversationID string, err error) error {
	logger.Error("chat %s reply failed: %v", conversationID, err)

	s.mu.Lock()
	s.conv = AddMessage(s.conv, NewAssistantMessage(s.fallback))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return err
}

func (s *Session) snapshotLocked() Conversation {
	snap := s.conv
	snap.Messages = GetMessages(s.conv)
	return snap
}

func (s *Session) notify(conv Conversation) {
	if s.observer != nil {
		s.observer(conv)
	}
}

func titleFrom(text string) string {
	const maxTitle = 40
	line := strings.SplitN(text, "\n", 2)[0]
	runes := []rune(line)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle]) + "..."
	}
	return line
}
