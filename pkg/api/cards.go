package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

func (c *Client) ListCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := c.do(ctx, http.MethodGet, "/cards", nil, &cards); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

func (c *Client) CreateCard(ctx context.Context, in CardInput) (*Card, error) {
	var card Card
	if err := c.do(ctx, http.MethodPost, "/cards", in, &card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return &card, nil
}

func (c *Client) UpdateCard(ctx context.Context, id string, in CardInput) (*Card, error) {
	var card Card
	if err := c.do(ctx, http.MethodPut, "/cards/"+url.PathEscape(id), in, &card); err != nil {
		return nil, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	return &card, nil
}

func (c *Client) DeleteCard(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/cards/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// UploadCardAttachment uploads a file and returns its URL
func (c *Client) UploadCardAttachment(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/cards/attachments"), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out, true); err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return out.URL, nil
}
