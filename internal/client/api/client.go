// Package api talks to the FocusFlow HTTP API on behalf of the client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
)

const (
	LoginPath           = "/api/auth/login"
	AuthorizationHeader = "Authorization"

	// maxErrorBody caps how much of a failed response is read for its message.
	maxErrorBody = 64 << 10
)

// StatusError is returned for non-2xx responses. Message is the server's
// "message" field when present.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// LoginResponse is the decoded body of a successful login.
type LoginResponse struct {
	Token string                   `json:"token"`
	User  *model.AuthenticatedUser `json:"user"`
}

// Client calls the API at BaseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. If httpClient is nil, http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Login posts credentials. It returns *StatusError for non-2xx responses and
// an error wrapping ErrMalformedResponse when the body lacks a token or a
// valid user.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(LoginPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%w: missing token", apperrors.ErrMalformedResponse)
	}
	if err := out.User.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}
	return &out, nil
}

// Do sends req with the bearer token attached. The caller closes the body.
func (c *Client) Do(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	req = req.WithContext(ctx)
	if token != "" {
		req.Header.Set(AuthorizationHeader, "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// CheckStatus returns nil for 2xx responses and a *StatusError otherwise,
// consuming the body to read the server's message.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		var payload apperrors.ErrorResponse
		if json.Unmarshal(body, &payload) == nil {
			statusErr.Message = payload.Message
		}
	}
	return statusErr
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
