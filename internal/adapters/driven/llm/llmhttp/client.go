// Package llmhttp is the JSON-over-HTTP plumbing shared by the LLM adapters
// that talk to their vendor without an SDK.
package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// maxErrorBody caps how much of a failed response is kept for the message.
const maxErrorBody = 64 << 10

// Client sends JSON requests to one vendor API.
type Client struct {
	// Vendor prefixes every error, e.g. "ollama".
	Vendor string

	// BaseURL is joined with each request path.
	BaseURL string

	// Header is added to every request.
	Header http.Header

	HTTP *http.Client
}

// New returns a client for vendor at baseURL with the given timeout.
func New(vendor, baseURL string, header http.Header, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		Vendor:  vendor,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Header:  header,
		HTTP:    client,
	}
}

// Do sends in as the JSON body (nil for none) and decodes a 200 response
// into out (nil to discard). Any other status becomes a *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	body := io.Reader(http.NoBody)
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.Vendor, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.Vendor, err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Vendor, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		return &StatusError{Vendor: c.Vendor, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Vendor, err)
	}
	return nil
}

// StatusError is a non-200 answer from a vendor API.
type StatusError struct {
	Vendor  string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Vendor, e.Status, e.Message)
}

// Retryable reports whether repeating the request could succeed.
func (e *StatusError) Retryable() bool {
	return Retryable(e.Status)
}

// Unwrap marks rejected requests with domain.ErrLLMRejected.
func (e *StatusError) Unwrap() error {
	if e.Retryable() {
		return nil
	}
	return domain.ErrLLMRejected
}

// Retryable reports whether an HTTP status is worth retrying: timeouts,
// throttling and server-side failures.
func Retryable(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

// errorMessage pulls the human-readable part out of the common error shapes
// {"error": "..."} and {"error": {"message": "..."}}, falling back to the
// raw body.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Error) > 0 {
		var text string
		if json.Unmarshal(envelope.Error, &text) == nil {
			return text
		}
		var detail struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "" {
			return detail.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
