// File: transport/transport.go
// Package transport opens and drives the non-blocking TCP socket underneath
// a connection. Raw fds are used directly so the engine keeps full control
// over readiness and buffer lifetimes; net.Conn would interpose its own
// poller and deadlines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

// ErrAgain is returned when a read or write would block; the caller should
// wait for readiness and retry.
var ErrAgain = errors.New("transport: operation would block")

// ErrEOF is returned when the peer closed the stream.
var ErrEOF = errors.New("transport: end of stream")
