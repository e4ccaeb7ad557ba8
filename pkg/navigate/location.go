// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package navigate performs the UI-side effect of a session invalidation:
// moving the active location to the login boundary.
package navigate

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/library-client/pkg/transport"
)

// LoginPath is the route users land on once their session is gone.
const LoginPath = "/login"

// Location tracks the active route of the application.
type Location struct {
	mu       sync.RWMutex
	path     string
	onChange func(from, to string)
	logger   zerolog.Logger
}

// NewLocation starts at path. onChange, when set, runs after every move.
func NewLocation(path string, onChange func(from, to string)) *Location {
	return &Location{
		path:     path,
		onChange: onChange,
		logger:   log.With().Str("component", "navigate").Logger(),
	}
}

// Path returns the active route.
func (l *Location) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// Navigate sets the active route.
func (l *Location) Navigate(path string) {
	l.mu.Lock()
	from := l.path
	l.path = path
	hook := l.onChange
	l.mu.Unlock()

	l.logger.Debug().Str("from", from).Str("to", path).Msg("navigated")
	if hook != nil {
		hook(from, path)
	}
}

// Listener returns an invalidation listener that forces navigation to the
// login route whenever the interceptor asks for a redirect.
func Listener(loc *Location) transport.Listener {
	return func(inv transport.Invalidation) {
		if !inv.Redirect {
			return
		}
		loc.Navigate(LoginPath)
	}
}
