package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Default client settings.
const (
	// DefaultTimeout bounds every request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent identifies the crawler in server logs and robots.txt.
	DefaultUserAgent = "sitemapper/1.0 (+https://github.com/nao1215/sitemapper)"
)

// Fetcher retrieves documents and document metadata over HTTP.
type Fetcher interface {
	// Fetch performs a GET request. Non-2xx responses are reported as *Error.
	Fetch(ctx context.Context, rawURL string) (*Response, error)

	// Head performs a HEAD request and returns the response headers.
	Head(ctx context.Context, rawURL string) (http.Header, error)
}

// Response is a fully read HTTP response.
type Response struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Header contains the response headers.
	Header http.Header

	// Body holds at most the client's max body size bytes.
	Body []byte
}

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Error describes a failed fetch. StatusCode is zero when no response
// was received at all (DNS failure, refused connection, timeout).
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

// ErrUnexpectedStatus is wrapped by Error when the server answered with a
// status outside the 2xx range.
var ErrUnexpectedStatus = errors.New("unexpected status code")

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client is the net/http backed Fetcher. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	headers     map[string]string
	cookie      string
	limiter     *rate.Limiter // rate.Inf unless a delay is configured
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is
// left untouched and WithTimeout has no effect, so callers supplying
// their own client own that setting.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the response body read limit in bytes.
func WithMaxBodySize(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBodySize = n
		}
	}
}

// WithHeaders adds custom headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(cl *Client) {
		cl.headers = h
	}
}

// WithCookie sets the Cookie header on every request.
func WithCookie(cookie string) Option {
	return func(cl *Client) {
		cl.cookie = cookie
	}
}

// WithDelay spaces requests at least d apart. Zero disables limiting.
func WithDelay(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.limiter.SetLimit(rate.Every(d))
		}
	}
}

// NewClient creates a Client with default settings.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:     DefaultTimeout,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// SlowDown raises the minimum spacing between requests to d when d is
// larger than the current spacing. It is used to honour robots.txt
// Crawl-delay values.
func (c *Client) SlowDown(d time.Duration) {
	if d <= 0 {
		return
	}
	if rate.Every(d) < c.limiter.Limit() {
		c.limiter.SetLimit(rate.Every(d))
	}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Head implements Fetcher.
func (c *Client) Head(ctx context.Context, rawURL string) (http.Header, error) {
	resp, err := c.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return resp.Header, nil
}

// do sends a request and converts transport failures and non-2xx
// responses into *Error. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if method == http.MethodGet {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		resp.Body.Close()
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	return resp, nil
}
