// File: client/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection establishment: URI split, non-blocking dial, readiness-driven
// opening handshake, transition to OPEN.

package client

import (
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/zerows/api"
	"github.com/momentics/zerows/control"
	"github.com/momentics/zerows/pool"
	"github.com/momentics/zerows/protocol"
	"github.com/momentics/zerows/reactor"
	"github.com/momentics/zerows/transport"
)

// handshakeScratch is the response head buffer size. The head must fit here
// entirely; anything larger is a handshake failure.
const handshakeScratch = 4096

// Options bundles a Config with the optional ambient collaborators.
type Options struct {
	Config  api.Config
	Logger  *zap.Logger
	Metrics *control.Metrics
}

// Connect dials uri and performs the opening handshake with default ambient
// options.
func Connect(uri string, cfg api.Config) (*Conn, error) {
	return ConnectOpts(uri, Options{Config: cfg})
}

// ConnectOpts dials ws://host[:port]/path, waits for the socket, sends the
// upgrade request and validates the 101 response. On success the connection
// is OPEN; on any failure all resources are released and an error with the
// taxonomy code is returned.
func ConnectOpts(uri string, opts Options) (*Conn, error) {
	host, port, path, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config.WithDefaults()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	bufCap := int(cfg.MaxFrameSize) + protocol.MaxHeaderSize
	c := &Conn{
		id:          uuid.NewString(),
		cfg:         cfg,
		log:         log,
		met:         opts.Metrics,
		parser:      protocol.NewParser(cfg.MaxFrameSize),
		recvBuf:     make([]byte, bufCap),
		ctrl:        queue.New(),
		scratchPool: pool.NewBytePool(bufCap),
	}
	c.scratch = c.scratchPool.GetBuffer()
	c.setState(api.StateConnecting)

	start := time.Now()
	if c.met != nil {
		defer func() { c.met.HandshakeDone(time.Since(start), c.State() == api.StateOpen) }()
	}

	c.sock, err = transport.Dial(host, port)
	if err != nil {
		c.lastErr.Store(int32(api.CodeNetwork))
		c.Close()
		return nil, api.NewError(api.CodeNetwork, "dial failed", err)
	}

	c.waiter, err = reactor.NewWaiter()
	if err == nil {
		err = c.waiter.Register(c.sock.Fd(), reactor.Writable)
	}
	if err != nil {
		c.lastErr.Store(int32(api.CodeNetwork))
		c.Close()
		return nil, api.NewError(api.CodeNetwork, "readiness setup failed", err)
	}

	deadline := start.Add(time.Duration(cfg.HandshakeTimeoutMs) * time.Millisecond)
	if err := c.establish(host, port, path, deadline); err != nil {
		c.lastErr.Store(int32(api.CodeOf(err)))
		c.Close()
		return nil, err
	}

	c.setState(api.StateOpen)
	if c.met != nil {
		c.met.ConnOpened()
	}
	log.Debug("connection open",
		zap.String("conn", c.id),
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("path", path))
	return c, nil
}

// remainingMs converts the deadline into a poll timeout, flooring at zero.
func remainingMs(deadline time.Time) int {
	ms := int(time.Until(deadline) / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	return ms
}

// establish waits for the connect to finish, then drives the handshake
// request/response exchange under one deadline.
func (c *Conn) establish(host string, port int, path string, deadline time.Time) error {
	ready, err := c.waiter.Wait(remainingMs(deadline))
	if err != nil {
		return api.NewError(api.CodeNetwork, "connect wait failed", err)
	}
	if !ready {
		return api.NewError(api.CodeTimeout, "connect timed out", nil)
	}
	if err := c.sock.ConnectErr(); err != nil {
		return api.NewError(api.CodeNetwork, "connect failed", err)
	}

	key := protocol.GenerateClientKey()
	accept := protocol.ComputeAccept(key)

	n, err := protocol.BuildRequest(c.scratch, host, port, path,
		key, c.cfg.UserAgent, c.cfg.Origin, c.cfg.Protocol)
	if err != nil {
		return err
	}
	if err := c.writeHandshake(c.scratch[:n], deadline); err != nil {
		return err
	}
	if err := c.waiter.Rearm(reactor.Readable); err != nil {
		return api.NewError(api.CodeNetwork, "readiness rearm failed", err)
	}

	head, leftover, err := c.readResponseHead(deadline)
	if err != nil {
		return err
	}
	if err := protocol.ValidateResponse(head, accept); err != nil {
		return err
	}

	// The server may pipeline frames right behind the 101; keep them.
	c.recvSize = copy(c.recvBuf, leftover)
	return nil
}

// writeHandshake writes the full request, retrying partial writes on
// writable readiness until the deadline.
func (c *Conn) writeHandshake(req []byte, deadline time.Time) error {
	off := 0
	for off < len(req) {
		n, err := c.sock.Write(req[off:])
		if err != nil && err != transport.ErrAgain {
			return api.NewError(api.CodeNetwork, "handshake send failed", err)
		}
		off += n
		if off == len(req) {
			return nil
		}
		ready, werr := c.waiter.Wait(remainingMs(deadline))
		if werr != nil {
			return api.NewError(api.CodeNetwork, "handshake send wait failed", werr)
		}
		if !ready {
			return api.NewError(api.CodeHandshake, "handshake send timed out", nil)
		}
	}
	return nil
}

// readResponseHead accumulates response bytes until the blank line. Returns
// the head (through the final CRLFCRLF) and any bytes read past it.
func (c *Conn) readResponseHead(deadline time.Time) (head, leftover []byte, err error) {
	buf := make([]byte, handshakeScratch)
	size := 0
	for {
		ready, werr := c.waiter.Wait(remainingMs(deadline))
		if werr != nil {
			return nil, nil, api.NewError(api.CodeNetwork, "handshake wait failed", werr)
		}
		if !ready {
			return nil, nil, api.NewError(api.CodeHandshake, "handshake timed out", nil)
		}

		n, rerr := c.sock.Read(buf[size:])
		if rerr != nil {
			if rerr == transport.ErrAgain {
				continue
			}
			return nil, nil, api.NewError(api.CodeNetwork, "handshake read failed", rerr)
		}
		size += n

		if idx := findHeadEnd(buf[:size]); idx >= 0 {
			return buf[:idx], buf[idx:size], nil
		}
		if size == len(buf) {
			return nil, nil, api.NewError(api.CodeHandshake, "response head too large", nil)
		}
	}
}

// findHeadEnd returns the offset one past the CRLFCRLF terminator, or -1.
func findHeadEnd(b []byte) int {
	for i := 0; i+4 <= len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i + 4
		}
	}
	return -1
}
