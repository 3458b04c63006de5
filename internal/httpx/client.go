// Package httpx is the shared JSON client for third-party providers. It owns
// retries and maps transport and status failures onto clierr codes.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/version"
)

// maxRetryAfter caps how long a provider's Retry-After can stall a command.
const maxRetryAfter = 5 * time.Second

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.UserAgent(),
	}
}

// StatusError carries a non-2xx provider response. Message is the provider's
// own explanation when the body has one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// ProviderMessage returns the provider's error text from err, or "".
func ProviderMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

// DoJSON sends req, retrying transport errors, 429s and 5xx, and decodes a
// 2xx body into out. out may be nil when the body is not needed.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var (
		header http.Header
		err    error
		wait   time.Duration
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				wait = backoff(attempt)
			}
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(wait):
			}
		}

		var retry bool
		header, retry, wait, err = c.attempt(ctx, req, out)
		metrics.ProviderRequests.WithLabelValues(req.URL.Host, metrics.Outcome(err)).Inc()
		if err == nil || !retry {
			return header, err
		}
	}
	return header, err
}

// attempt performs one round trip. retry reports whether the failure is
// transient; wait is the provider's requested delay, if it sent one.
func (c *Client) attempt(ctx context.Context, req *http.Request, out any) (h http.Header, retry bool, wait time.Duration, err error) {
	next := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false, 0, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
		}
		next.Body = body
	}

	resp, err := c.httpClient.Do(next)
	if err != nil {
		return nil, true, 0, mapNetError(err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, true, 0, clierr.Wrap(clierr.CodeUnavailable, "read provider response", readErr)
	}

	if retry, err := classify(resp.StatusCode, buf); err != nil {
		return resp.Header, retry, retryAfter(resp.Header), err
	}
	if out == nil {
		return resp.Header, false, 0, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return resp.Header, false, 0, clierr.New(clierr.CodeUnavailable, "provider returned empty response")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return resp.Header, false, 0, clierr.Wrap(clierr.CodeUnavailable, "decode provider JSON", err)
	}
	return resp.Header, false, 0, nil
}

// classify maps a status to an error, or nil for 2xx.
func classify(status int, body []byte) (retry bool, err error) {
	if status >= 200 && status < 300 {
		return false, nil
	}
	se := &StatusError{StatusCode: status, Message: errorMessage(body)}
	switch {
	case status == http.StatusTooManyRequests:
		return true, clierr.Wrap(clierr.CodeRateLimited, "provider rate limited request", se)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, clierr.Wrap(clierr.CodeAuth, "provider authentication failed", se)
	case status == http.StatusNotFound:
		return false, clierr.Wrap(clierr.CodeNotFound, "provider has no such resource", se)
	case status >= http.StatusInternalServerError:
		return true, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("provider unavailable (status %d)", status), se)
	default:
		return false, clierr.Wrap(clierr.CodeUnsupported, fmt.Sprintf("provider returned unexpected status %d", status), se)
	}
}

// retryAfter reads a delay-seconds Retry-After header.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	if d := time.Duration(secs) * time.Second; d < maxRetryAfter {
		return d
	}
	return maxRetryAfter
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// DoForm posts an urlencoded form with optional basic auth.
func DoForm(ctx context.Context, c *Client, endpoint string, form url.Values, username, password string, out any) (http.Header, error) {
	body := []byte(form.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	if username != "" {
		req.SetBasicAuth(username, password)
	}
	return c.DoJSON(ctx, req, out)
}

// errorMessage pulls a human readable message out of common provider error
// bodies: {"message":..}, {"error":".."} and {"error":{"message":..}}.
func errorMessage(buf []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	if len(body.Error) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(body.Error, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "provider timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "provider request failed", err)
}

func backoff(attempt int) time.Duration {
	d := 120 * time.Millisecond << uint(attempt-1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d + time.Duration(rand.Intn(75))*time.Millisecond
}
