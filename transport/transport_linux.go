//go:build linux
// +build linux

// File: transport/transport_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket plumbing: SOCK_NONBLOCK dial with in-progress connect,
// EAGAIN-aware read/write, SO_ERROR harvest after writable readiness.

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Sock owns one non-blocking TCP socket fd.
type Sock struct {
	fd int
}

// Dial resolves host and starts a non-blocking connect to host:port. The
// returned socket is usually still connecting; the caller must wait for
// writable readiness and then check ConnectErr.
func Dial(host string, port int) (*Sock, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	var lastErr error
	for _, ip := range ips {
		fd, serr := dialIP(ip, port)
		if serr == nil {
			return &Sock{fd: fd}, nil
		}
		lastErr = serr
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, lastErr
}

// dialIP opens a non-blocking socket for one address and initiates connect.
func dialIP(ip net.IP, port int) (int, error) {
	var (
		fd  int
		err error
		sa  unix.Sockaddr
	)
	if ip4 := ip.To4(); ip4 != nil {
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
		if err != nil {
			return -1, fmt.Errorf("socket create: %w", err)
		}
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], ip4)
		sa = a
	} else {
		fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
		if err != nil {
			return -1, fmt.Errorf("socket create: %w", err)
		}
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip.To16())
		sa = a
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("connect: %w", err)
	}
	return fd, nil
}

// Fd exposes the raw descriptor for readiness registration and Fileno.
func (s *Sock) Fd() int { return s.fd }

// ConnectErr harvests SO_ERROR after the socket reported writable; a
// non-blocking connect parks its failure there.
func (s *Sock) ConnectErr() error {
	soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	if soerr != 0 {
		return fmt.Errorf("connect: %w", unix.Errno(soerr))
	}
	return nil
}

// Read fills p from the socket. Maps EAGAIN to ErrAgain and a zero-byte read
// to ErrEOF.
func (s *Sock) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrAgain
		}
		return 0, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return 0, ErrEOF
	}
	return n, nil
}

// Write sends p. A short count with nil error is possible; the caller decides
// whether to retry the remainder.
func (s *Sock) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrAgain
		}
		return 0, fmt.Errorf("write: %w", err)
	}
	return n, nil
}

// Close shuts down and releases the fd. Safe to call twice.
func (s *Sock) Close() error {
	if s.fd < 0 {
		return nil
	}
	_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
