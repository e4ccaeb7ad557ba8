// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// NonceBytes is the number of random bytes behind every nonce.
const NonceBytes = 16

// ErrEntropyUnavailable is returned when the secure random source fails.
var ErrEntropyUnavailable = errors.New("secure random source unavailable")

// NewNonce returns a hex encoded single-use value read from r, or from
// crypto/rand when r is nil.
func NewNonce(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, NonceBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return hex.EncodeToString(buf), nil
}
