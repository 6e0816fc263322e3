package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client calls the Telegram Bot API over HTTPS.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string

	maxAttempts int
	retryDelay  time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API endpoint (tests use a
// local httptest server).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempt count and the delay between attempts.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.retryDelay = delay
	}
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     defaultAPIBase,
		token:       token,
		maxAttempts: 3,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes one Bot API method and returns the raw result payload.
// Transient failures (network errors, 429, 5xx) are retried a bounded number
// of times; API-level errors are returned as-is.
func (c *Client) Call(ctx context.Context, method Method) (json.RawMessage, error) {
	body, err := json.Marshal(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method.MethodName(), err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method.MethodName())

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			slog.Debug("Retrying Telegram API call",
				"method", method.MethodName(), "attempt", attempt)
		}

		result, retryable, err := c.doCall(ctx, url, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("telegram %s failed: %w", method.MethodName(), lastErr)
}

func (c *Client) doCall(ctx context.Context, url string, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, false, fmt.Errorf("invalid API response (status %d): %w", resp.StatusCode, err)
	}
	if !apiResp.OK {
		err := fmt.Errorf("API error %d: %s", apiResp.ErrorCode, apiResp.Description)
		retryable := apiResp.ErrorCode == http.StatusTooManyRequests || apiResp.ErrorCode >= 500
		return nil, retryable, err
	}
	return apiResp.Result, false, nil
}

// AnswerCallback acks a callback query to stop the client-side spinner.
// Errors are logged and swallowed: the ack races against Telegram's answer
// deadline and losing that race must not affect processing.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) {
	if _, err := c.Call(ctx, AnswerCallbackQuery{CallbackQueryID: callbackID}); err != nil {
		slog.Debug("Failed to answer callback query", "error", err)
	}
}
