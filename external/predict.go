// Prediction backend HTTP client.
//
// PostJSON is the single outbound call used by every backend adapter: one
// POST of a JSON body to {predictionURL}/{selector}, bounded by a timeout,
// returning the raw JSON response body. There are no retries here.
//
// FAILURES:
//   - *TimeoutError: the timeout elapsed before a response arrived
//   - *StatusError:  the backend answered with a non-2xx status
//   - *DecodeError:  the body is not valid JSON
//   - anything else: transport failure (connection refused, DNS, ...)
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout for prediction calls.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// TimeoutError reports a call that did not finish within its timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// DecodeError reports a response body that is not valid JSON.
type DecodeError struct {
	URL  string
	Body string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s returned a malformed body: %s", e.URL, e.Body)
}

// Client posts JSON to prediction backends.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client. A nil transport uses http.DefaultTransport;
// pass a SigV4Transport for backends behind AWS authentication.
func NewClient(transport http.RoundTripper) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	// timeout via context, not client
	return &Client{httpClient: &http.Client{Transport: transport}}
}

// PostJSON sends body to url and returns the JSON response body.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, timeout time.Duration) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("prediction url required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: url, Timeout: timeout}
		}
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: url, Timeout: timeout}
		}
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}
	if !json.Valid(respBody) {
		return nil, &DecodeError{URL: url, Body: truncate(respBody)}
	}
	return respBody, nil
}

// JoinURL appends a downstream selector to a prediction URL.
func JoinURL(base, selector string) string {
	base = strings.TrimRight(base, "/")
	selector = strings.TrimLeft(selector, "/")
	if selector == "" {
		return base
	}
	return base + "/" + selector
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		s = s[:maxErrorBodyLen] + "... (truncated)"
	}
	return s
}
