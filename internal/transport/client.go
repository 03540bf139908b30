// Package transport provides the paced HTTP client used for every CRM
// request. Authentication is a static token passed as a request parameter,
// and a fixed minimum inter-request interval keeps the client inside the
// remote service's request-rate ceiling.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ligrlabs/crmsync/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultDelay is the default minimum inter-request interval. The remote
// service allows 100 requests per 10 seconds.
const DefaultDelay = 120 * time.Millisecond

// Counter receives one callback per outbound request. The run context
// satisfies it.
type Counter interface {
	CountRequest()
}

// Client is a JSON HTTP client with query-parameter token authentication
// and request pacing. It is not safe for concurrent use; the pipeline is
// strictly sequential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	delay   time.Duration
	last    time.Time
	counter Counter
	sleep   func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithDelay sets the minimum inter-request interval.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCounter attaches a request counter.
func WithCounter(counter Counter) Option {
	return func(c *Client) { c.counter = counter }
}

// New creates a transport client for the given base URL and credential
// token. A missing token is a fatal configuration error.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.ErrAPITokenRequired
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		delay:   DefaultDelay,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request with a JSON body and decodes the response.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put performs a PUT request with a JSON body and decodes the response.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	c.pace()

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", c.token)
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WrapParse("json", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.WrapAPI(path, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	c.last = time.Now()
	if c.counter != nil {
		c.counter.CountRequest()
	}
	if err != nil {
		return &errors.APIError{Endpoint: path, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	return decode(resp, path, out)
}

// pace enforces the minimum interval since the previous request. This is a
// pacing mechanism, not backpressure from observed congestion.
func (c *Client) pace() {
	if c.last.IsZero() || c.delay <= 0 {
		return
	}
	if wait := c.delay - time.Since(c.last); wait > 0 {
		c.sleep(wait)
	}
}

// decode reads and unmarshals a JSON response body into out. The remote
// service returns a JSON envelope even on non-2xx statuses, so the body is
// decoded regardless and the status only matters when decoding fails.
func decode(resp *http.Response, path string, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &errors.APIError{
				Endpoint:   path,
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(data)),
			}
		}
		return errors.WrapParse("json", path, err)
	}
	return nil
}
