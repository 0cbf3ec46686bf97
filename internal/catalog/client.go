// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/extmgr/internal/extension"
)

// Client defaults.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultArchiveTimeout = 5 * time.Minute
	DefaultRetries        = 2
	DefaultRetryBase      = 200 * time.Millisecond

	// maxDocumentSize bounds JSON documents read into memory.
	maxDocumentSize = 8 << 20
)

// Client performs outbound HTTP for catalogs, repository metadata and
// release archives.
type Client struct {
	http           *http.Client
	token          string
	tokenHosts     []glob.Glob
	requestTimeout time.Duration
	archiveTimeout time.Duration
	retries        uint64
	retryBase      time.Duration
	userAgent      string
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc != nil {
			c.http = hc
		}
		return nil
	}
}

// WithToken sends token as a bearer credential to hosts matching any of the
// glob patterns, e.g. "api.github.com" or "*.githubusercontent.com".
func WithToken(token string, hostPatterns ...string) ClientOption {
	return func(c *Client) error {
		c.token = token
		for _, p := range hostPatterns {
			g, err := glob.Compile(p, '.')
			if err != nil {
				return oops.With("pattern", p).Wrapf(err, "invalid token host pattern")
			}
			c.tokenHosts = append(c.tokenHosts, g)
		}
		return nil
	}
}

// WithTimeouts sets the per-request timeout for documents and archives.
func WithTimeouts(request, archive time.Duration) ClientOption {
	return func(c *Client) error {
		if request > 0 {
			c.requestTimeout = request
		}
		if archive > 0 {
			c.archiveTimeout = archive
		}
		return nil
	}
}

// WithRetries bounds retries of transient failures. Zero disables retrying.
func WithRetries(n uint64, base time.Duration) ClientOption {
	return func(c *Client) error {
		c.retries = n
		if base > 0 {
			c.retryBase = base
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		http:           &http.Client{},
		requestTimeout: DefaultRequestTimeout,
		archiveTimeout: DefaultArchiveTimeout,
		retries:        DefaultRetries,
		retryBase:      DefaultRetryBase,
		userAgent:      "extmgr",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// GetJSON fetches u and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, u string, v any) error {
	data, err := c.GetBytes(ctx, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code(extension.CodeCatalogMalformed).With("url", u).Wrapf(err, "invalid JSON")
	}
	return nil
}

// GetBytes fetches u and returns the body.
func (c *Client) GetBytes(ctx context.Context, u string) ([]byte, error) {
	return retry.DoValue(ctx, c.backoff(), func(ctx context.Context) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		resp, err := c.do(ctx, u)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if err != nil {
			return nil, retry.RetryableError(
				oops.Code(extension.CodeFetchFailed).With("url", u).Wrapf(err, "read body"))
		}
		return data, nil
	})
}

// Download streams u into dest, replacing any existing file. A partial file
// is removed on failure.
func (c *Client) Download(ctx context.Context, u, dest string) error {
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.archiveTimeout)
		defer cancel()

		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return oops.Code(extension.CodeFilesystem).With("path", dest).Wrap(err)
		}

		resp, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		f, err := os.Create(dest) //nolint:gosec // dest is built from the extension layout
		if err != nil {
			return oops.Code(extension.CodeFilesystem).With("path", dest).Wrap(err)
		}
		_, copyErr := io.Copy(f, resp.Body)
		closeErr := f.Close()
		if copyErr != nil || closeErr != nil {
			_ = os.Remove(dest)
			if copyErr == nil {
				return oops.Code(extension.CodeFilesystem).With("path", dest).Wrap(closeErr)
			}
			return retry.RetryableError(
				oops.Code(extension.CodeFetchFailed).With("url", u).Wrapf(copyErr, "download archive"))
		}
		return nil
	})
}

// do issues a GET and classifies failures. Transport errors and 5xx/429
// responses are retryable; other non-2xx responses are not.
func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, oops.Code(extension.CodeFetchFailed).With("url", u).Wrapf(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.authorize(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, oops.Code(extension.CodeFetchFailed).With("url", u).Wrap(err)
		}
		return nil, retry.RetryableError(oops.Code(extension.CodeFetchFailed).With("url", u).Wrap(err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	statusErr := oops.Code(extension.CodeFetchFailed).
		With("url", u).
		With("status", resp.StatusCode).
		Errorf("unexpected status %s", resp.Status)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, retry.RetryableError(statusErr)
	}
	return nil, statusErr
}

func (c *Client) authorize(u *url.URL) bool {
	if c.token == "" {
		return false
	}
	host := u.Hostname()
	for _, g := range c.tokenHosts {
		if g.Match(host) {
			return true
		}
	}
	return false
}

func (c *Client) backoff() retry.Backoff {
	return retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))
}
