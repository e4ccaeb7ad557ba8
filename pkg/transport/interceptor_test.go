// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-core-stack/library-client/pkg/session"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// recordingTransport answers every call with status and remembers the
// headers it saw.
type recordingTransport struct {
	mu      sync.Mutex
	status  int
	headers []http.Header
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()
	return &http.Response{
		StatusCode: r.status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("body")),
		Request:    req,
	}, nil
}

func (r *recordingTransport) last() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[len(r.headers)-1]
}

func loggedInStore() *session.MemoryStore {
	return session.NewMemoryStore(session.State{
		Token:  "abc123",
		Role:   "member",
		UserID: "7",
		User:   `{"id":7}`,
	})
}

func newClient(t *testing.T, status int, store session.Store, opts ...Option) (*http.Client, *recordingTransport) {
	t.Helper()
	rec := &recordingTransport{status: status}
	c := &http.Client{Transport: rec}
	Install(c, store, opts...)
	return c, rec
}

func doGet(t *testing.T, c *http.Client, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func wrapDepth(rt http.RoundTripper) int {
	depth := 0
	for {
		i, ok := rt.(*Interceptor)
		if !ok {
			return depth
		}
		depth++
		rt = i.Unwrap()
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	rec := &recordingTransport{status: http.StatusOK}
	c := &http.Client{Transport: rec}
	store := loggedInStore()

	first := Install(c, store)
	for n := 0; n < 5; n++ {
		assert.Same(t, first, Install(c, store), "install %d returned a new interceptor", n)
	}

	assert.Equal(t, 1, wrapDepth(c.Transport))
	assert.Equal(t, http.RoundTripper(rec), first.Unwrap())
}

func TestInstallConcurrent(t *testing.T) {
	c := &http.Client{Transport: &recordingTransport{status: http.StatusOK}}
	store := loggedInStore()

	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Install(c, store)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wrapDepth(c.Transport))
}

func TestInstallDefaultsToDefaultTransport(t *testing.T) {
	c := &http.Client{}
	i := Install(c, session.NewMemoryStore(session.State{}))
	assert.Equal(t, http.DefaultTransport, i.Unwrap())
}

func TestAttachRejectsOtherStore(t *testing.T) {
	c := &http.Client{Transport: &recordingTransport{status: http.StatusOK}}

	first, err := Attach(c, loggedInStore())
	require.NoError(t, err)

	_, err = Attach(c, session.NewMemoryStore(session.State{Token: "other"}))
	require.ErrorIs(t, err, ErrStoreMismatch)
	assert.Same(t, first, c.Transport)
	assert.Equal(t, 1, wrapDepth(c.Transport))
}

func TestAttachSameStoreAddsListeners(t *testing.T) {
	store := loggedInStore()
	c := &http.Client{Transport: &recordingTransport{status: http.StatusUnauthorized}}

	var fired []string
	first, err := Attach(c, store, WithListener(func(Invalidation) { fired = append(fired, "first") }))
	require.NoError(t, err)
	second, err := Attach(c, store, WithListener(func(Invalidation) { fired = append(fired, "second") }))
	require.NoError(t, err)
	require.Same(t, first, second)
	assert.Same(t, store, second.Store())

	doGet(t, c, "https://library.example.com/api/books")

	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, 1, wrapDepth(c.Transport))
}

func TestAuthorizationAttached(t *testing.T) {
	c, rec := newClient(t, http.StatusOK, loggedInStore())

	doGet(t, c, "https://library.example.com/api/books")

	assert.Equal(t, "Bearer abc123", rec.last().Get("Authorization"))
}

func TestAuthorizationOmittedForExemptEndpoints(t *testing.T) {
	c, rec := newClient(t, http.StatusOK, loggedInStore())

	for _, url := range []string{
		"https://library.example.com/api/login",
		"https://library.example.com/api/signup",
		"https://library.example.com/api/login?next=/books",
	} {
		doGet(t, c, url)
		assert.Empty(t, rec.last().Values("Authorization"), url)
	}
}

func TestAuthorizationOmittedWithoutToken(t *testing.T) {
	c, rec := newClient(t, http.StatusOK, session.NewMemoryStore(session.State{}))

	doGet(t, c, "https://library.example.com/api/books")

	assert.Empty(t, rec.last().Values("Authorization"))
}

func TestCallerRequestNotMutated(t *testing.T) {
	c, rec := newClient(t, http.StatusOK, loggedInStore())

	req, err := http.NewRequest(http.MethodGet, "https://library.example.com/api/books", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace", "1")
	callerHeader := req.Header

	resp, err := c.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, callerHeader.Values("Authorization"))
	assert.Equal(t, "1", rec.last().Get("X-Trace"))
}

func TestUnauthorizedClearsSessionAndRedirects(t *testing.T) {
	store := loggedInStore()
	var events []Invalidation
	c, _ := newClient(t, http.StatusUnauthorized, store, WithListener(func(inv Invalidation) {
		events = append(events, inv)
	}))

	resp := doGet(t, c, "https://library.example.com/api/books")

	// the response reaches the caller untouched
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))

	state, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Empty(), "session not cleared: %+v", state)

	require.Len(t, events, 1)
	assert.True(t, events[0].Redirect)
	assert.Equal(t, http.StatusUnauthorized, events[0].Status)
	assert.Equal(t, http.MethodGet, events[0].Method)
}

func TestUnauthorizedLoginDoesNotRedirect(t *testing.T) {
	store := loggedInStore()
	var events []Invalidation
	c, _ := newClient(t, http.StatusUnauthorized, store, WithListener(func(inv Invalidation) {
		events = append(events, inv)
	}))

	doGet(t, c, "https://library.example.com/api/login")

	state, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Empty(), "session not cleared: %+v", state)
	require.Len(t, events, 1)
	assert.False(t, events[0].Redirect)
}

func TestSuccessfulResponseKeepsSession(t *testing.T) {
	store := loggedInStore()
	c, _ := newClient(t, http.StatusOK, store, WithListener(func(inv Invalidation) {
		t.Errorf("unexpected invalidation %+v", inv)
	}))

	doGet(t, c, "https://library.example.com/api/books")

	token, err := session.Token(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestTransportErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	store := loggedInStore()
	c := &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, wantErr
	})}
	Install(c, store)

	req, err := http.NewRequest(http.MethodGet, "https://library.example.com/api/books", nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.ErrorIs(t, err, wantErr)

	// a network failure is not a rejection
	token, _ := session.Token(context.Background(), store)
	assert.Equal(t, "abc123", token)
}

func TestInFlightRequestsKeepCapturedHeaders(t *testing.T) {
	store := loggedInStore()
	release := make(chan struct{})
	captured := make(chan string, 1)

	c := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		status := http.StatusUnauthorized
		if strings.HasSuffix(req.URL.Path, "/slow") {
			captured <- req.Header.Get("Authorization")
			<-release
			status = http.StatusOK
		}
		return &http.Response{StatusCode: status, Header: make(http.Header), Body: http.NoBody}, nil
	})}
	Install(c, store)

	done := make(chan int)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, "https://library.example.com/api/slow", nil)
		resp, err := c.Do(req)
		if err != nil {
			done <- 0
			return
		}
		_ = resp.Body.Close()
		done <- resp.StatusCode
	}()

	got := <-captured

	// a concurrent rejection clears the session while /slow is in flight
	doGet(t, c, "https://library.example.com/api/books")
	token, _ := session.Token(context.Background(), store)
	assert.Empty(t, token)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, "Bearer abc123", got)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, _ := newClient(t, http.StatusUnauthorized, loggedInStore(), WithMetrics(m))

	doGet(t, c, "https://library.example.com/api/books")
	doGet(t, c, "https://library.example.com/api/login")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invalidations.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invalidations.WithLabelValues("false")))
}

func TestIsExempt(t *testing.T) {
	cases := map[string]bool{
		"/api/login":                       true,
		"http://host/api/signup":           true,
		"http://host/v2/api/login/refresh": true,
		"/api/books":                       false,
		"/api/loans/login-history":         false,
		"":                                 false,
	}
	for url, want := range cases {
		assert.Equal(t, want, IsExempt(url), url)
	}
}
