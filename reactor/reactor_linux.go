//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) implementation of the single-fd Waiter.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// linuxWaiter wraps one epoll instance watching one fd.
type linuxWaiter struct {
	epfd int
	fd   int
}

// NewWaiter constructs the platform Waiter.
func NewWaiter() (Waiter, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxWaiter{epfd: epfd, fd: -1}, nil
}

// events maps an Interest to epoll event bits. Level-triggered: the engine
// performs exactly one read or write per wakeup, so edge-triggering would
// lose readiness for bytes left in the socket buffer.
func events(interest Interest) uint32 {
	if interest == Writable {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

// Register adds fd to the epoll set.
func (w *linuxWaiter) Register(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: events(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	w.fd = fd
	return nil
}

// Rearm switches the watched direction.
func (w *linuxWaiter) Rearm(interest Interest) error {
	ev := unix.EpollEvent{Events: events(interest), Fd: int32(w.fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_MOD, w.fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Wait blocks for readiness or timeout. EINTR retries the wait.
func (w *linuxWaiter) Wait(timeoutMs int) (bool, error) {
	var evs [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(w.epfd, evs[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("epoll wait: %w", err)
		}
		return n > 0, nil
	}
}

// Close releases the epoll fd. The watched socket is owned by the caller.
func (w *linuxWaiter) Close() error {
	return unix.Close(w.epfd)
}
