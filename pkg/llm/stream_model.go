// Package llm exposes the chat stream endpoint as a langchaingo model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/killallgit/chatnote/pkg/stream"
	"github.com/tmc/langchaingo/llms"
)

// ErrNoMessages is returned when there is nothing to send
var ErrNoMessages = errors.New("no messages to send")

// Opener opens a chat event stream
type Opener interface {
	OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
}

// StreamModel implements llms.Model on top of the streaming chat endpoint
type StreamModel struct {
	opener         Opener
	ingestor       *stream.Ingestor
	model          string
	conversationID string
}

var _ llms.Model = (*StreamModel)(nil)

type Option func(*StreamModel)

// WithConversation sends requests under a fixed conversation ID. By default
// every call starts a new conversation.
func WithConversation(id string) Option {
	return func(m *StreamModel) {
		m.conversationID = id
	}
}

func WithIngestor(in *stream.Ingestor) Option {
	return func(m *StreamModel) {
		m.ingestor = in
	}
}

// NewStreamModel creates a model that talks to opener
func NewStreamModel(opener Opener, model string, opts ...Option) *StreamModel {
	m := &StreamModel{opener: opener, model: model}
	for _, opt := range opts {
		opt(m)
	}
	if m.ingestor == nil {
		m.ingestor = stream.NewIngestor(stream.Options{})
	}
	return m
}

// Call sends a single prompt and returns the reply
func (m *StreamModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent streams a reply to messages. A StreamingFunc option
// receives each new fragment as it arrives.
func (m *StreamModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	req := api.ChatRequest{
		Model: m.model,
		ID:    m.conversationID,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	for _, msg := range messages {
		role, ok := roleFor(msg.Role)
		if !ok {
			logger.Debug("llm skipping %s message", msg.Role)
			continue
		}
		text := textOf(msg.Parts)
		if text == "" {
			continue
		}
		req.Messages = append(req.Messages, api.ChatMessage{Role: role, Content: text})
	}
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	body, err := m.opener.OpenChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var streamErr error
	sent := 0
	result, err := m.ingestor.Ingest(ctx, body, func(cumulative string) {
		if opts.StreamingFunc == nil || streamErr != nil {
			return
		}
		chunk := cumulative[sent:]
		sent = len(cumulative)
		if chunk == "" {
			return
		}
		streamErr = opts.StreamingFunc(ctx, []byte(chunk))
	})
	if err != nil {
		return nil, err
	}
	if streamErr != nil {
		return nil, fmt.Errorf("streaming func failed: %w", streamErr)
	}
	if result.Canceled {
		return nil, ctx.Err()
	}

	stop := "stop"
	if !result.Done {
		stop = "eof"
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    result.Content,
			StopReason: stop,
			GenerationInfo: map[string]any{
				"conversation_id": req.ID,
				"deltas":          result.Deltas,
			},
		}},
	}, nil
}

func roleFor(t llms.ChatMessageType) (api.Role, bool) {
	switch t {
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return api.RoleUser, true
	case llms.ChatMessageTypeAI:
		return api.RoleAssistant, true
	case llms.ChatMessageTypeSystem:
		return api.RoleSystem, true
	default:
		return "", false
	}
}

func textOf(parts []llms.ContentPart) string {
	var sb strings.Builder
	for _, part := range parts {
		if tc, ok := part.(llms.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
