// Package github implements the repository backend over the GitHub REST API.
package github

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

	"ghos/internal/errors"
	"ghos/internal/logging"
	"ghos/internal/middleware"
)

const (
	DefaultBaseURL = "https://api.github.com"
	userAgent      = "ghos/1.0"
)

type Options struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	CacheSize    int
	ReposPerPage int
	Logger       *logging.Logger
	// Transport is the innermost round tripper; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	perPage    int
	logger     *logging.Logger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 512
	}
	if opts.ReposPerPage == 0 {
		opts.ReposPerPage = 100
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	cache, err := NewCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: middleware.Chain(opts.Transport,
				middleware.RequestID,
				middleware.Logger(opts.Logger),
				middleware.Headers(userAgent, opts.Token),
			),
		},
		cache:   cache,
		perPage: opts.ReposPerPage,
		logger:  opts.Logger,
	}, nil
}

// Invalidate drops cached reads for a repository.
func (c *Client) Invalidate(owner, repo string) {
	c.cache.Invalidate(owner, repo)
}

// ClearCache drops every cached read.
func (c *Client) ClearCache() {
	c.cache.Purge()
}

// apiMessage is the error body GitHub returns with non-2xx responses.
type apiMessage struct {
	Message string `json:"message"`
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func repoPath(owner, repo string, rest ...string) string {
	p := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
	for _, r := range rest {
		if r != "" {
			p += "/" + r
		}
	}
	return p
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded
// from a 2xx body when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Transport(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Transport(fmt.Sprintf("decoding %s %s", method, path), err)
	}
	return nil
}

// statusError maps a failed response onto the error taxonomy. Code keeps
// the HTTP status so callers can refine the mapping per endpoint.
func statusError(method, path string, resp *http.Response) *errors.Error {
	var msg apiMessage
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &msg)

	detail := msg.Message
	if detail == "" {
		detail = resp.Status
	}

	var e *errors.Error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		e = errors.Unauthorized("authentication required")
	case http.StatusForbidden:
		e = errors.Forbidden("permission denied")
	case http.StatusNotFound:
		e = errors.NotFound(fmt.Sprintf("not found: %s", path))
	case http.StatusUnprocessableEntity:
		e = errors.ValidationError(fmt.Sprintf("%s %s rejected", method, path), detail)
	default:
		e = errors.Transport(fmt.Sprintf("%s %s: unexpected status %d", method, path, resp.StatusCode), nil)
	}
	e.Code = resp.StatusCode
	if e.Details == nil {
		e.Details = detail
	}
	return e
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	if e, ok := err.(*errors.Error); ok {
		return e.Code
	}
	return 0
}
