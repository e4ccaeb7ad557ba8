// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package transport contains the round tripper every library API call goes
// through. It attaches the session bearer token to outgoing requests and
// invalidates the session when the API answers 401.
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/library-client/pkg/session"
)

const (
	LoginEndpoint  = "/api/login"
	SignupEndpoint = "/api/signup"

	HeaderAuthorization = "Authorization"
)

// Invalidation describes a session that was cleared because the API
// rejected a request.
type Invalidation struct {
	Method string
	URL    string
	Status int
	// Redirect is false when the rejected call was the login call itself, so
	// a failed login never bounces back to the login route.
	Redirect bool
}

// Listener reacts to an invalidation. Listeners perform effects such as
// navigation; the interceptor only makes the decision.
type Listener func(Invalidation)

// Option customizes an Interceptor at install time.
type Option func(*Interceptor)

// WithListener registers l to run after every invalidation.
func WithListener(l Listener) Option {
	return func(i *Interceptor) {
		if l != nil {
			i.listeners = append(i.listeners, l)
		}
	}
}

// WithMetrics records request and invalidation counts on m.
func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// Interceptor wraps the original transport of an http.Client.
type Interceptor struct {
	// base is the pre-install transport every call is delegated to.
	base http.RoundTripper
	// store is read on every request and cleared on rejection.
	store session.Store

	mu        sync.RWMutex
	listeners []Listener

	metrics *Metrics
	logger  zerolog.Logger
}

// ErrStoreMismatch is returned by Attach when the client already carries an
// interceptor bound to another session store.
var ErrStoreMismatch = errors.New("interceptor already installed with a different session store")

// installMu serializes Install so concurrent bootstraps cannot both wrap.
var installMu sync.Mutex

// Install wraps c's transport with an Interceptor. Installing on a client
// whose transport is already an Interceptor is a no-op that returns the
// existing one; the original transport is only ever wrapped once. store and
// opts are ignored in that case, see Attach.
func Install(c *http.Client, store session.Store, opts ...Option) *Interceptor {
	installMu.Lock()
	defer installMu.Unlock()

	if existing, ok := c.Transport.(*Interceptor); ok {
		existing.logger.Debug().Msg("interceptor already installed")
		return existing
	}

	return wrap(c, store, opts...)
}

// Attach is Install for callers that own a session store. On a client that
// already carries an interceptor it fails with ErrStoreMismatch unless that
// interceptor reads the same store, and otherwise registers the listeners
// from opts on it. Other options only apply to a fresh install.
func Attach(c *http.Client, store session.Store, opts ...Option) (*Interceptor, error) {
	installMu.Lock()
	defer installMu.Unlock()

	existing, ok := c.Transport.(*Interceptor)
	if !ok {
		return wrap(c, store, opts...), nil
	}

	if existing.store != store {
		return nil, ErrStoreMismatch
	}

	pending := &Interceptor{}
	for _, opt := range opts {
		opt(pending)
	}
	for _, l := range pending.listeners {
		existing.AddListener(l)
	}
	existing.logger.Debug().Int("listeners", len(pending.listeners)).Msg("interceptor already installed")
	return existing, nil
}

// wrap replaces c's transport with a new Interceptor. Callers hold installMu.
func wrap(c *http.Client, store session.Store, opts ...Option) *Interceptor {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	i := newInterceptor(base, store, opts...)
	c.Transport = i
	i.logger.Debug().Msg("interceptor installed")
	return i
}

// Store returns the session store the interceptor reads and clears.
func (i *Interceptor) Store() session.Store {
	return i.store
}

func newInterceptor(base http.RoundTripper, store session.Store, opts ...Option) *Interceptor {
	i := &Interceptor{
		base:   base,
		store:  store,
		logger: log.With().Str("component", "interceptor").Logger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Unwrap returns the transport the interceptor delegates to.
func (i *Interceptor) Unwrap() http.RoundTripper {
	return i.base
}

// AddListener registers l after installation.
func (i *Interceptor) AddListener(l Listener) {
	if l == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, l)
}

// RoundTrip implements http.RoundTripper. The caller's request and header
// map are never modified; the response is always returned as received.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	target := resolveURL(req)
	out := req
	authorized := false

	if target != "" && !IsExempt(target) {
		token, err := session.Token(req.Context(), i.store)
		if err != nil {
			i.logger.Warn().Err(err).Str("url", target).Msg("read session token failed")
		}
		if token != "" {
			// Clone copies the header map so the bearer never leaks into
			// the caller's request.
			out = req.Clone(req.Context())
			out.Header.Set(HeaderAuthorization, "Bearer "+token)
			authorized = true
		}
	}

	i.metrics.observeRequest(authorized)

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		i.invalidate(req, target)
	}

	return resp, nil
}

// invalidate clears the session and notifies listeners.
func (i *Interceptor) invalidate(req *http.Request, target string) {
	inv := Invalidation{
		Method:   req.Method,
		URL:      target,
		Status:   http.StatusUnauthorized,
		Redirect: !strings.Contains(target, LoginEndpoint),
	}

	// The rejection already happened; a canceled caller context must not
	// leave a dead token behind.
	ctx := context.WithoutCancel(req.Context())
	if err := i.store.Clear(ctx); err != nil {
		i.logger.Error().Err(err).Str("url", target).Msg("clear session failed")
	}

	i.metrics.observeInvalidation(inv.Redirect)
	i.logger.Info().
		Str("method", inv.Method).
		Str("url", inv.URL).
		Bool("redirect", inv.Redirect).
		Msg("session invalidated")

	i.mu.RLock()
	listeners := make([]Listener, len(i.listeners))
	copy(listeners, i.listeners)
	i.mu.RUnlock()

	for _, l := range listeners {
		l(inv)
	}
}

// IsExempt reports whether url targets an endpoint that must never carry the
// session token.
func IsExempt(url string) bool {
	return strings.Contains(url, LoginEndpoint) || strings.Contains(url, SignupEndpoint)
}

func resolveURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.String()
}
