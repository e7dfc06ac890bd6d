package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	DefaultUserAgent = "jobharvest/1.0 (+greenhouse+lever+career_url; no-stealth)"
	maxBodyBytes     = 8 << 20
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.URL)
}

type Response struct {
	Status   int
	FinalURL string
	Body     []byte
}

// Client wraps net/http with per-host rate limiting, per-request timeouts and
// an explicit retry policy. It is safe for concurrent use.
type Client struct {
	hc        *http.Client
	userAgent string
	limiter   *HostLimiter
	retry     RetryPolicy
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.hc = hc } }
func WithUserAgent(ua string) ClientOption        { return func(c *Client) { c.userAgent = ua } }
func WithLimiter(l *HostLimiter) ClientOption     { return func(c *Client) { c.limiter = l } }
func WithRetryPolicy(p RetryPolicy) ClientOption  { return func(c *Client) { c.retry = p } }

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:        &http.Client{},
		userAgent: DefaultUserAgent,
		retry:     APIRetryPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithRetry returns a shallow copy using policy p. The limiter is shared.
func (c *Client) WithRetry(p RetryPolicy) *Client {
	cp := *c
	cp.retry = p
	return &cp
}

func (c *Client) RetryPolicy() RetryPolicy { return c.retry }

// Get fetches rawURL under the client's retry policy. Each attempt gets its own
// timeout; non-2xx responses become *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration, accept string) (*Response, error) {
	var out *Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		res, err := c.do(ctx, rawURL, timeout, accept)
		if err != nil {
			return err
		}
		if res.Status < 200 || res.Status > 299 {
			return &StatusError{Code: res.Status, URL: rawURL}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetJSON fetches and decodes a JSON document into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, timeout time.Duration, v any) error {
	res, err := c.Get(ctx, rawURL, timeout, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return eris.Wrapf(err, "decode %s", rawURL)
	}
	return nil
}

// Probe performs a single attempt and returns the response whatever its
// status. Used where the status itself is the signal.
func (c *Client) Probe(ctx context.Context, rawURL string, timeout time.Duration, accept string) (*Response, error) {
	return c.do(ctx, rawURL, timeout, accept)
}

func (c *Client) do(ctx context.Context, rawURL string, timeout time.Duration, accept string) (*Response, error) {
	if err := c.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request %s", rawURL)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept == "" {
		accept = "text/html,application/json;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("Accept", accept)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	final := rawURL
	if res.Request != nil && res.Request.URL != nil {
		final = res.Request.URL.String()
	}
	return &Response{Status: res.StatusCode, FinalURL: final, Body: body}, nil
}

// Download streams rawURL into w without the in-memory body cap. A retry after
// a partial write would corrupt w, so Download makes a single attempt.
func (c *Client) Download(ctx context.Context, rawURL string, timeout time.Duration, w io.Writer) (int64, error) {
	if err := c.limiter.WaitURL(ctx, rawURL); err != nil {
		return 0, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "build request %s", rawURL)
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, &StatusError{Code: res.StatusCode, URL: rawURL}
	}
	return io.Copy(w, res.Body)
}
