// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package client is the entry point application code uses to talk to the
// library API. A Client signs every call, carries the session token and is
// built once per process; its http.Client transport is the session
// interceptor.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/go-core-stack/library-client/pkg/auth"
	"github.com/go-core-stack/library-client/pkg/config"
	"github.com/go-core-stack/library-client/pkg/session"
	"github.com/go-core-stack/library-client/pkg/transport"
)

const (
	HeaderContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Client signs and dispatches library API requests.
type Client struct {
	// baseURL resolves relative request paths.
	baseURL *url.URL
	// http performs the calls; its transport is the session interceptor.
	http *http.Client
	// signer produces the timestamp, nonce and signature headers.
	signer *auth.Signer
	// store holds the session token shared with the interceptor.
	store session.Store
	// interceptor is kept so listeners can be added after construction.
	interceptor *transport.Interceptor
	// limiter optionally paces dispatch; nil disables it.
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type options struct {
	httpClient      *http.Client
	interceptorOpts []transport.Option
}

// Option customizes a Client.
type Option func(*options)

// WithHTTPClient uses c instead of a pooled cleanhttp client. Its transport
// is wrapped by the interceptor. Several Clients may share c only when they
// share one session store.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithListener registers an invalidation listener on the interceptor.
func WithListener(l transport.Listener) Option {
	return func(o *options) {
		o.interceptorOpts = append(o.interceptorOpts, transport.WithListener(l))
	}
}

// WithMetrics records interceptor metrics on m.
func WithMetrics(m *transport.Metrics) Option {
	return func(o *options) {
		o.interceptorOpts = append(o.interceptorOpts, transport.WithMetrics(m))
	}
}

// New constructs a Client from configuration. It is meant to be called once
// from the composition root and shared by every call site.
func New(cfg config.Config, store session.Store, opts ...Option) (*Client, error) {
	if cfg.APIURL == nil {
		return nil, fmt.Errorf("api url must be set")
	}
	if store == nil {
		return nil, fmt.Errorf("session store must be set")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}

	logger := log.With().Str("component", "client").Logger()
	interceptor, err := transport.Attach(httpClient, store, o.interceptorOpts...)
	if err != nil {
		return nil, fmt.Errorf("install interceptor: %w", err)
	}

	c := &Client{
		baseURL:     cloneURL(cfg.APIURL),
		http:        httpClient,
		signer:      auth.NewSigner(cfg.AppID),
		store:       store,
		interceptor: interceptor,
		logger:      logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return c, nil
}

// newHTTPClient builds a pooled client with TLS 1.2+ and the configured timeout.
func newHTTPClient(cfg config.Config) *http.Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.RequestTimeout

	tr := httpClient.Transport.(*http.Transport)
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
	}
	return httpClient
}

// Store returns the session store the client reads tokens from.
func (c *Client) Store() session.Store {
	return c.store
}

// AddListener registers an invalidation listener after construction.
func (c *Client) AddListener(l transport.Listener) {
	c.interceptor.AddListener(l)
}

// BaseURL returns a copy of the configured API address.
func (c *Client) BaseURL() *url.URL {
	return cloneURL(c.baseURL)
}

// SecurityHeaders returns the timestamp, nonce and signature headers for a
// call to rawURL.
func (c *Client) SecurityHeaders(method, rawURL string) (http.Header, error) {
	return c.signer.Headers(method, rawURL)
}

// Headers returns the full header set Do would send: the JSON content type,
// the security headers, the bearer token when a session exists, and finally
// the caller's headers, which win on conflict.
func (c *Client) Headers(ctx context.Context, method, rawURL string, header http.Header) (http.Header, error) {
	security, err := c.SecurityHeaders(method, rawURL)
	if err != nil {
		return nil, err
	}

	h := make(http.Header, len(security)+len(header)+2)
	h.Set(HeaderContentType, contentTypeJSON)
	for k, vv := range security {
		h[k] = vv
	}

	if !transport.IsExempt(rawURL) {
		token, err := session.Token(ctx, c.store)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("read session token failed")
		}
		if token != "" {
			h.Set(transport.HeaderAuthorization, "Bearer "+token)
		}
	}

	for k, vv := range header {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vv...)
	}
	return h, nil
}

// Do signs and sends a request. The response is returned exactly as the
// transport produced it; there is no retry and no status interpretation.
// Signing happens after any rate limit wait so the timestamp is fresh.
func (c *Client) Do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*http.Response, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	h, err := c.Headers(ctx, method, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	req.Header = h

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("url", rawURL).Msg("request failed")
		return nil, err
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request completed")
	return resp, nil
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil, nil)
}

// PostJSON encodes v as the request body and POSTs it.
func (c *Client) PostJSON(ctx context.Context, rawURL string, v any) (*http.Response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, rawURL, bytes.NewReader(payload), nil)
}

// resolve turns rawURL into an absolute address against the base URL.
func (c *Client) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	return c.baseURL.ResolveReference(ref), nil
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}
