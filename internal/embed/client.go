// Package embed calls the external embedding provider for one piece of text
// and normalizes provider HTTP failures into typed reasons. Retry policy
// lives at the caller: bulk ingestion tolerates per-chunk failures instead of
// retrying in place.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxInputLength is the provider-safe ceiling for a single input, in
// bytes. Callers truncate before embedding to respect upstream
// sequence-length limits.
const MaxInputLength = 2000

// Client embeds text through an HTTP provider with bearer authentication.
// The wire format is POST {"inputs": "<text>"} returning a raw numeric
// vector array.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	dimension  int
}

// NewClient creates an embedding client. It fails fast when the endpoint or
// credentials are missing so that no pipeline step starts without them.
func NewClient(url, apiKey string, dimension int, timeout time.Duration) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("embedding provider URL not configured")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding provider API key not configured")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		dimension:  dimension,
	}, nil
}

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int {
	return c.dimension
}

type embedRequest struct {
	Inputs string `json:"inputs"`
}

// Embed generates the embedding vector for one piece of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Reason: ReasonNoEmbeddingReturned, Message: "input is empty"}
	}

	body, err := json.Marshal(embedRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Reason: ReasonProviderError, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Reason: ReasonProviderError, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, payload)
	}

	vector, err := parseVector(payload)
	if err != nil {
		return nil, &Error{Reason: ReasonNoEmbeddingReturned, Message: err.Error()}
	}
	return vector, nil
}

// classifyStatus maps provider HTTP status codes onto typed reasons.
func classifyStatus(status int, payload []byte) *Error {
	message := strings.TrimSpace(string(payload))
	switch status {
	case http.StatusUnauthorized:
		return &Error{Reason: ReasonUnauthorized, Message: message}
	case http.StatusTooManyRequests:
		return &Error{Reason: ReasonRateLimited, Message: message}
	case http.StatusServiceUnavailable:
		return &Error{Reason: ReasonModelLoading, Message: message}
	default:
		return &Error{
			Reason:  ReasonProviderError,
			Message: fmt.Sprintf("status %d: %s", status, message),
		}
	}
}

// parseVector accepts the provider's raw array response, either flat
// ([0.1, ...]) or singly nested ([[0.1, ...]]).
func parseVector(payload []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(payload, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(payload, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	return nil, fmt.Errorf("response carries no embedding values")
}

// Truncate bounds text to MaxInputLength bytes without splitting a UTF-8
// rune.
func Truncate(text string) string {
	if len(text) <= MaxInputLength {
		return text
	}
	limit := MaxInputLength
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
