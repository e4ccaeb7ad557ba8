// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy provides a local HTTP gateway in front of the library API.
// Tools that cannot sign requests themselves point at the gateway; every
// forwarded call is signed and carries the stored session token, and a 401
// from the API invalidates the shared session exactly as a direct call would.
package proxy
