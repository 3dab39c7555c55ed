// File: reactor/reactor.go
// Package reactor provides readiness waits for a single non-blocking socket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The connection engine owns exactly one fd and alternates between waiting
// for writability (connect, partial handshake writes) and readability
// (response bytes, frames). That narrow contract keeps the platform surface
// to a registration call, an interest switch and a bounded wait.

package reactor

// Interest selects the readiness direction to wait for.
type Interest int

const (
	// Readable waits until a read would not block.
	Readable Interest = iota
	// Writable waits until a write would not block.
	Writable
)

// Waiter is a single-fd readiness primitive.
type Waiter interface {
	// Register binds the waiter to fd with an initial interest. Must be
	// called exactly once before Wait.
	Register(fd int, interest Interest) error

	// Rearm switches the interest for subsequent waits.
	Rearm(interest Interest) error

	// Wait blocks until the fd is ready or timeoutMs elapses. A negative
	// timeout blocks indefinitely. Returns false on timeout.
	Wait(timeoutMs int) (bool, error)

	// Close releases the underlying poll handle.
	Close() error
}
