// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-core-stack/library-client/pkg/session"
	"github.com/go-core-stack/library-client/pkg/transport"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 64 * 1024

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse mirrors the body the login endpoint returns. userId may be a
// number or a string depending on the backend.
type loginResponse struct {
	Token  string          `json:"token"`
	Role   string          `json:"role"`
	UserID json.RawMessage `json:"userId"`
	User   json.RawMessage `json:"user"`
}

// StatusError reports a non-success status from the library API.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Status, bytes.TrimSpace(e.Body))
}

// Login authenticates against the login endpoint and stores the resulting
// session. Any previous session is replaced.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.State, error) {
	resp, err := c.PostJSON(ctx, transport.LoginEndpoint, creds)
	if err != nil {
		return session.State{}, fmt.Errorf("login: %w", err)
	}
	defer c.closeBody(resp)

	if err := checkStatus(resp); err != nil {
		return session.State{}, err
	}

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return session.State{}, fmt.Errorf("decode login response: %w", err)
	}
	if body.Token == "" {
		return session.State{}, errors.New("login response carried no token")
	}

	state := session.State{
		Token:  body.Token,
		Role:   body.Role,
		UserID: rawID(body.UserID),
	}
	if len(body.User) > 0 && string(body.User) != "null" {
		state.User = string(body.User)
	}

	if err := c.store.Set(ctx, state); err != nil {
		return session.State{}, fmt.Errorf("store session: %w", err)
	}

	c.logger.Info().Str("role", state.Role).Str("user_id", state.UserID).Msg("logged in")
	return state, nil
}

// Signup registers a new account. It does not log the account in.
func (c *Client) Signup(ctx context.Context, payload any) error {
	resp, err := c.PostJSON(ctx, transport.SignupEndpoint, payload)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	defer c.closeBody(resp)

	return checkStatus(resp)
}

// Logout drops the local session. The API keeps no server-side state for
// bearer tokens, so nothing is sent.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.logger.Info().Msg("logged out")
	return nil
}

// Session returns the stored session, or session.ErrNoSession when no token
// is held.
func (c *Client) Session(ctx context.Context) (session.State, error) {
	state, err := c.store.Get(ctx)
	if err != nil {
		return session.State{}, err
	}
	if state.Token == "" {
		return session.State{}, session.ErrNoSession
	}
	return state, nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close response body failed")
	}
}

// checkStatus turns a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{
		Status: resp.StatusCode,
		Body:   payload,
	}
	if resp.Request != nil {
		serr.Method = resp.Request.Method
		serr.URL = resp.Request.URL.String()
	}
	return serr
}

// rawID renders a JSON number or string identifier as plain text.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
