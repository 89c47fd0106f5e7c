// Package remote is the HTTP transport used to reach the events service.
package remote

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appLog "usercal/internal/log"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "usercal/0.1"

	// RequestIDHeader carries a per-request UUID for correlating logs with
	// the remote service.
	RequestIDHeader = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds each round trip. Zero means defaultTimeout.
	Timeout time.Duration

	// RatePerSecond and Burst configure a token bucket shared by all
	// requests. RatePerSecond <= 0 disables pacing.
	RatePerSecond float64
	Burst         int

	// Transport overrides the underlying round tripper (tests).
	Transport http.RoundTripper
}

// Client sends requests to the events service. It adds a request ID and
// applies optional pacing. Each Do is exactly one round trip; there are no
// retries.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	c := &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

// Do waits for a pacing token, then performs the request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("remote: rate limit wait: %w", err)
		}
	}

	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		appLog.Error("remote request failed", err,
			"method", req.Method,
			"url", redactURL(req.URL.String()),
			"request_id", req.Header.Get(RequestIDHeader),
		)
		return nil, err
	}

	appLog.Debug("remote request done",
		"method", req.Method,
		"url", redactURL(req.URL.String()),
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"request_id", req.Header.Get(RequestIDHeader),
	)
	return resp, nil
}

// redactURL strips userinfo and query from u for logging.
func redactURL(u string) string {
	const redacted = "...(redacted)"

	// Find scheme separator.
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return redacted
	}

	rest := u[i:]
	for j := 0; j < len(rest); j++ {
		if rest[j] == '/' {
			break
		}
		if rest[j] == '@' {
			rest = rest[j+1:]
			break
		}
	}
	for j := 0; j < len(rest); j++ {
		if rest[j] == '?' || rest[j] == '#' {
			rest = rest[:j]
			break
		}
	}
	return u[:i] + rest
}
