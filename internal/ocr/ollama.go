// Package ocr implements the vision-model OCR client for Ollama's
// /api/chat endpoint.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// DefaultBaseURL is the local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the vision model used for OCR.
	DefaultModel = "qwen2.5-vl:7b"

	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 30 * time.Second
)

// errEmptyText marks a blank model response. The upstream model
// occasionally returns empty text under transient overload, so this is
// retried like a network failure.
var errEmptyText = errors.New("model returned empty text")

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	// HTTPClient overrides the default client (used in tests).
	HTTPClient *http.Client
}

// Client talks to an Ollama vision model. It is safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	maxRetries int
	client     *http.Client
}

// NewClient creates an OCR client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		client:     httpClient,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// ExtractText sends a JPEG page image and a prompt to the vision model
// and returns the recognized text, trimmed of surrounding whitespace.
//
// Transient failures (network errors, 5xx, 408/429, and empty-text
// responses) are retried with exponential backoff: attempt k waits
// 1s * 2^(k-1), capped at 30s. Other 4xx responses and malformed JSON
// fail immediately. Cancellation is observed between attempts; an
// in-flight request runs to its timeout.
func (c *Client) ExtractText(ctx context.Context, image []byte, prompt string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
		Stream: false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	text, err := retry.DoWithData(
		func() (string, error) {
			return c.attempt(ctx, body)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("ocr failed after %d attempts: %w", c.maxRetries, err)
	}
	return text, nil
}

// attempt performs one chat call. Errors are classified: unrecoverable
// errors abort the retry loop, everything else is retried.
func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if retryableStatus(resp.StatusCode) {
			return "", err
		}
		return "", retry.Unrecoverable(err)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("malformed ollama response: %w", err))
	}
	if chat.Error != "" {
		return "", fmt.Errorf("ollama returned error: %s", chat.Error)
	}

	text := strings.TrimSpace(chat.Message.Content)
	if text == "" {
		return "", errEmptyText
	}
	return text, nil
}

// retryableStatus reports whether an HTTP status is worth retrying:
// server errors, request timeout, and rate limiting.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
