// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package session holds the client's persisted session state: the bearer
// token issued at login and the principal metadata stored next to it.
package session

import (
	"context"
	"errors"
)

// ErrNoSession is returned by callers that require a token when none is stored.
var ErrNoSession = errors.New("no active session")

// State is the process-wide session. All fields are created together at
// login and removed together on logout or rejection.
type State struct {
	Token  string `json:"token,omitempty"`
	Role   string `json:"role,omitempty"`
	UserID string `json:"userId,omitempty"`
	// User is the serialized user profile returned by the login endpoint.
	User string `json:"user,omitempty"`
}

// Empty reports whether no session field is set.
func (s State) Empty() bool {
	return s == State{}
}

// Store abstracts where the session lives so request signing and
// interception never touch a concrete storage mechanism.
type Store interface {
	// Get returns the current state; the zero State when none is stored.
	Get(ctx context.Context) (State, error)
	// Set replaces the stored state.
	Set(ctx context.Context, s State) error
	// Clear removes every field. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Token is a convenience for reading only the bearer credential.
func Token(ctx context.Context, store Store) (string, error) {
	s, err := store.Get(ctx)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}
