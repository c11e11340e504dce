package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const contentTypeJSON = "application/json"

// Client talks to the remote retail API. Every path is relative to one configured origin.
type Client struct {
	base *url.URL
	http *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("[apiclient New] invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[apiclient New] base url %q must be absolute", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForSession returns a client that authenticates every request with the bearer token from ts
func (c *Client) ForSession(ts oauth2.TokenSource) *Client {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		base: c.base,
		http: &http.Client{
			Timeout:   c.http.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base},
		},
	}
}

// BaseURL returns the configured API origin
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL joins a relative API path (which may carry a query string) to the origin.
// It returns an empty string for paths that would leave the origin.
func (c *Client) URL(path string) string {
	u, err := c.Resolve(path)
	if err != nil {
		return ""
	}
	return u
}

// Resolve joins path to the origin. Absolute URLs, scheme or host references and paths
// escaping the base path are rejected with a 400 FetchError, so the session's bearer
// token is only ever sent to the configured API.
func (c *Client) Resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", &FetchError{Status: http.StatusBadRequest, Message: "invalid api path"}
	}
	if ref.Scheme != "" || ref.Host != "" || ref.Opaque != "" || ref.User != nil {
		return "", &FetchError{Status: http.StatusBadRequest, Message: "api path must be relative"}
	}
	resolved := c.base.ResolveReference(ref)
	if resolved.Scheme != c.base.Scheme || resolved.Host != c.base.Host || !strings.HasPrefix(resolved.Path, c.base.Path) {
		return "", &FetchError{Status: http.StatusBadRequest, Message: "api path leaves the api origin"}
	}
	return resolved.String(), nil
}

// Get fetches path and returns the raw body of a 2xx response
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// GetJSON fetches path and decodes the body into out
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Send performs a mutation. body is JSON encoded when non-nil; out receives the decoded response when non-nil.
func (c *Client) Send(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case json.RawMessage:
			reader = bytes.NewReader(b)
		case []byte:
			reader = bytes.NewReader(b)
		default:
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("[apiclient Send] encode body: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}
	}
	respBody, err := c.do(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(respBody, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[apiclient %s] build request: %w", method, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("[apiclient %s] read body: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newFetchError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func decode(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Status: http.StatusBadGateway, Message: "malformed response: " + err.Error()}
	}
	return nil
}
