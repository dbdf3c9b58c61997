// Package reputation queries the remote account reputation service and
// caches its answers.
package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseSize = 1024 * 1024

// Client checks accounts against the remote reputation service.
// Concurrent checks of the same account share one request.
type Client struct {
	http    HTTPClient
	baseURL string
	timeout time.Duration
	breaker *Breaker
	log     *slog.Logger
	group   singleflight.Group
}

// NewClient creates a Client. Each request is bounded by timeout.
func NewClient(httpClient HTTPClient, baseURL string, timeout time.Duration, breaker *Breaker, log *slog.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		timeout: timeout,
		breaker: breaker,
		log:     log,
	}
}

// Check reports whether the service considers accountID banned.
// It returns ErrCircuitOpen without making a request while the breaker is
// open, and an error wrapping ErrUnavailable when the request fails.
func (c *Client) Check(ctx context.Context, accountID int64) (bool, error) {
	if err := c.breaker.Allow(); err != nil {
		checkCount.WithLabelValues("circuit_open").Inc()
		return false, err
	}

	v, err, _ := c.group.Do(strconv.FormatInt(accountID, 10), func() (any, error) {
		return c.check(ctx, accountID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Client) check(ctx context.Context, accountID int64) (bool, error) {
	start := time.Now()
	banned, err := c.do(ctx, accountID)
	checkDuration.Observe(time.Since(start).Seconds())
	if err != nil && ctx.Err() != nil {
		checkCount.WithLabelValues("cancelled").Inc()
		return false, fmt.Errorf("check account: %w", ctx.Err())
	}
	if err != nil {
		c.breaker.Failure()
		checkCount.WithLabelValues("unavailable").Inc()
		c.log.Warn("reputation check failed", "account_id", accountID, "error", err)
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.breaker.Success()
	if banned {
		checkCount.WithLabelValues("banned").Inc()
	} else {
		checkCount.WithLabelValues("clean").Inc()
	}
	return banned, nil
}

func (c *Client) do(ctx context.Context, accountID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", strconv.FormatInt(accountID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("read body: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	if fields == nil {
		return false, errors.New("decode response: not an object")
	}
	return isTrue(fields["ok"]) && truthy(fields["result"]), nil
}

// isTrue reports whether raw is the JSON literal true.
func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

// truthy reports whether a JSON value is non-empty: not null, false, zero,
// an empty string, an empty array or an empty object.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return false
}
