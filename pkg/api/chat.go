package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/killallgit/chatnote/pkg/stream"
)

const eventStreamType = "text/event-stream"

// OpenChatStream posts a chat request and returns the event-stream body.
// The caller must close it. Only the caller's context bounds the stream.
func (c *Client) OpenChatStream(ctx context.Context, chatReq ChatRequest) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat", chatReq, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", eventStreamType)

	logger.Debug("api opening chat stream for %s with %d messages", chatReq.ID, len(chatReq.Messages))

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, stream.NewOpenError(err)
	}

	if err := c.checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, stream.NewOpenError(stream.ErrNoBody)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != eventStreamType {
		resp.Body.Close()
		return nil, stream.NewOpenError(fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}

	return resp.Body, nil
}

// Sessions lists the chat session index
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	list := listOf[Session]{field: "chats"}
	if err := c.do(ctx, http.MethodGet, "/chat/list", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return list.items, nil
}

// History fetches the stored messages of a conversation
func (c *Client) History(ctx context.Context, conversationID string) ([]HistoryMessage, error) {
	var messages []HistoryMessage
	path := "/chat/getMessageListById/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return messages, nil
}
