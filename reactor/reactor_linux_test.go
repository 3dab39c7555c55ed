//go:build linux
// +build linux

// File: reactor/reactor_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func pipeFds(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWaiterReadable(t *testing.T) {
	r, w := pipeFds(t)

	waiter, err := NewWaiter()
	if err != nil {
		t.Fatalf("NewWaiter: %v", err)
	}
	defer waiter.Close()

	if err := waiter.Register(r, Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Nothing buffered: zero timeout reports not ready.
	ready, err := waiter.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ready {
		t.Fatal("empty pipe reported readable")
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ready, err = waiter.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ready {
		t.Fatal("pipe with data reported not readable")
	}
}

func TestWaiterRearm(t *testing.T) {
	r, w := pipeFds(t)
	_ = r

	waiter, err := NewWaiter()
	if err != nil {
		t.Fatalf("NewWaiter: %v", err)
	}
	defer waiter.Close()

	// An empty pipe's write end is immediately writable.
	if err := waiter.Register(w, Writable); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ready, err := waiter.Wait(1000)
	if err != nil || !ready {
		t.Fatalf("writable wait: ready=%v err=%v", ready, err)
	}

	// Switch the same fd to read interest: the write end never reads.
	if err := waiter.Rearm(Readable); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	ready, err = waiter.Wait(0)
	if err != nil {
		t.Fatalf("Wait after rearm: %v", err)
	}
	if ready {
		t.Fatal("write end reported readable")
	}
}
