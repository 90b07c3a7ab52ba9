// Package transport talks to the remote agent backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	JSONContentType = "application/json"

	// DefaultTimeout bounds a single request so a stalled backend cannot
	// leave the client sending forever
	DefaultTimeout = 60 * time.Second
)

// Asker answers a question within a session
type Asker interface {
	Ask(ctx context.Context, question, sessionID string) (string, error)
}

// Config configures the agent client
type Config struct {
	// BaseURL is the backend origin, e.g. https://host
	BaseURL string
	// Stateless selects /ask instead of the session scoped /chat endpoint
	Stateless bool
	Timeout   time.Duration
}

// Client is the JSON-over-HTTP agent client
type Client struct {
	httpClient *http.Client
	baseURL    string
	stateless  bool
}

var _ Asker = (*Client)(nil)

// NewClient creates an agent client from cfg
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		stateless:  cfg.Stateless,
	}
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type askResponse struct {
	Answer *string `json:"answer"`
}

type examplesResponse struct {
	Examples []string `json:"examples"`
}

// Feedback is a user rating of one answer
type Feedback struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// Ask sends the question to /chat scoped to sessionID, or to /ask when the
// client is stateless.
func (c *Client) Ask(ctx context.Context, question, sessionID string) (string, error) {
	path := "/chat"
	body := askRequest{Question: question, SessionID: sessionID}
	if c.stateless {
		path = "/ask"
		body = askRequest{Question: question}
	}

	var resp askResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.Answer == nil {
		return "", fmt.Errorf("%s: %w: no answer field", path, ErrMalformedResponse)
	}

	slog.Debug("agent answered",
		slog.String("endpoint", path),
		slog.String("session_id", sessionID),
		slog.Int("answer_length", len(*resp.Answer)),
	)
	return *resp.Answer, nil
}

// Examples fetches sample prompts
func (c *Client) Examples(ctx context.Context) ([]string, error) {
	var resp examplesResponse
	if err := c.do(ctx, http.MethodGet, "/examples", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Examples, nil
}

// SendFeedback records a rating between 1 and 5 for an answer
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("%w: %d", ErrInvalidRating, fb.Rating)
	}
	return c.do(ctx, http.MethodPost, "/feedback", fb, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		reqBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", JSONContentType)
	}
	req.Header.Set("Accept", JSONContentType)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := handleAPIError(res, respBody); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedResponse, err)
	}
	return nil
}
