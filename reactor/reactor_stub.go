//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux stub. The engine is epoll-first; other platforms report
// unsupported instead of pretending readiness.

package reactor

import "errors"

var errUnsupported = errors.New("reactor: platform not supported")

type stubWaiter struct{}

// NewWaiter constructs the platform Waiter.
func NewWaiter() (Waiter, error) {
	return nil, errUnsupported
}

func (stubWaiter) Register(int, Interest) error { return errUnsupported }
func (stubWaiter) Rearm(Interest) error         { return errUnsupported }
func (stubWaiter) Wait(int) (bool, error)       { return false, errUnsupported }
func (stubWaiter) Close() error                 { return nil }
