package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges credentials for a token and keeps it on the client
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and keeps the returned token on the client
func (c *Client) Register(ctx context.Context, creds Credentials) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", creds)
}

// auth endpoints answer with a bare object, not the data envelope
func (c *Client) authenticate(ctx context.Context, path string, creds Credentials) (*AuthResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, creds, false)
	if err != nil {
		return nil, err
	}

	var result AuthResult
	if err := c.send(req, &result, false); err != nil {
		return nil, fmt.Errorf("%s failed: %w", path, err)
	}
	if result.Token == "" {
		return nil, errors.New("server returned no token")
	}

	c.SetToken(result.Token)
	return &result, nil
}
