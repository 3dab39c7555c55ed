//go:build !linux
// +build !linux

// File: transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

var errUnsupported = errors.New("transport: platform not supported")

// Sock owns one non-blocking TCP socket fd.
type Sock struct {
	fd int
}

// Dial is unavailable off Linux.
func Dial(string, int) (*Sock, error) { return nil, errUnsupported }

func (s *Sock) Fd() int                  { return -1 }
func (s *Sock) ConnectErr() error        { return errUnsupported }
func (s *Sock) Read([]byte) (int, error) { return 0, errUnsupported }
func (s *Sock) Write([]byte) (int, error) {
	return 0, errUnsupported
}
func (s *Sock) Close() error { return nil }
