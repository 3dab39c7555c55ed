// File: client/conn.go
// Package client is the connection engine: it binds the protocol codec to a
// non-blocking socket with readiness-driven I/O, a flat receive buffer with
// pinned zero-copy payload lifetimes, and auto-response handling for control
// frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"crypto/rand"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/zerows/api"
	"github.com/momentics/zerows/control"
	"github.com/momentics/zerows/pool"
	"github.com/momentics/zerows/protocol"
	"github.com/momentics/zerows/reactor"
	"github.com/momentics/zerows/transport"
)

// ctrlFrame is a queued auto-response control frame. Payloads are copied out
// of the receive buffer before queueing so a deferred send never aliases
// pinned bytes.
type ctrlFrame struct {
	opcode  api.Opcode
	payload []byte
}

// Conn is one client WebSocket connection. A Conn is owned by a single
// goroutine; only State and LastError are safe to call concurrently.
type Conn struct {
	id  string
	cfg api.Config
	log *zap.Logger
	met *control.Metrics

	sock   *transport.Sock
	waiter reactor.Waiter

	state   atomic.Int32
	lastErr atomic.Int32

	parser *protocol.Parser

	// Receive side. recvBuf[fedOff:recvSize] is unparsed input; everything
	// before fedOff belongs to already-emitted frames and is reclaimed by
	// compact(). While pinRefs > 0 the buffer must not move.
	recvBuf  []byte
	recvSize int
	fedOff   int
	pinRefs  int
	pinned   []byte

	// Pending auto-responses (PONG echoes), drained in order before any
	// user frame is returned.
	ctrl *queue.Queue

	scratchPool *pool.BytePool
	scratch     []byte
}

// State returns the connection lifecycle state.
func (c *Conn) State() api.State {
	if c == nil {
		return api.StateError
	}
	return api.State(c.state.Load())
}

// LastError returns the most recent non-OK error code.
func (c *Conn) LastError() api.Code {
	if c == nil {
		return api.CodeInvalidArgs
	}
	return api.Code(c.lastErr.Load())
}

// Fileno exposes the socket descriptor for caller-managed readiness
// integration. Returns -1 on a closed connection.
func (c *Conn) Fileno() int {
	if c == nil || c.sock == nil {
		return -1
	}
	return c.sock.Fd()
}

// ID returns the connection id used in logs and metrics.
func (c *Conn) ID() string { return c.id }

// setState records a transition and logs it.
func (c *Conn) setState(s api.State) {
	old := api.State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Debug("state transition",
			zap.String("conn", c.id),
			zap.String("from", old.String()),
			zap.String("to", s.String()))
	}
}

// fail records an error code, moves the connection to ERROR and returns the
// matching sentinel wrapped with cause.
func (c *Conn) fail(code api.Code, msg string, cause error) error {
	c.lastErr.Store(int32(code))
	c.setState(api.StateError)
	if c.met != nil {
		c.met.ConnError(api.ErrorString(code))
	}
	err := api.NewError(code, msg, cause)
	c.log.Warn("connection failed", zap.String("conn", c.id), zap.Error(err))
	return err
}

// soft records an error code without mutating connection state, for
// transient conditions.
func (c *Conn) soft(code api.Code) error {
	c.lastErr.Store(int32(code))
	switch code {
	case api.CodeTimeout:
		return api.ErrTimeout
	case api.CodeClosed:
		return api.ErrClosed
	default:
		return api.ErrNotReady
	}
}

// freshMask draws a new 4-byte mask key for one outgoing frame.
func freshMask() [4]byte {
	var m [4]byte
	if _, err := rand.Read(m[:]); err != nil {
		x := uint32(time.Now().UnixNano())
		for i := range m {
			x = x*1103515245 + 12345
			m[i] = byte(x >> 24)
		}
	}
	return m
}

// writeAll performs a single best-effort write of buf. Short writes and
// EAGAIN are surfaced as network errors; the engine has no send queue.
func (c *Conn) writeAll(buf []byte) error {
	n, err := c.sock.Write(buf)
	if err != nil {
		if err == transport.ErrAgain {
			return c.fail(api.CodeNetwork, "send would block", err)
		}
		return c.fail(api.CodeNetwork, "send failed", err)
	}
	if n < len(buf) {
		return c.fail(api.CodeNetwork, "partial send", nil)
	}
	if c.met != nil {
		c.met.Bytes("out", n)
	}
	return nil
}

// sendFrame builds a masked frame in the scratch buffer and writes it out.
func (c *Conn) sendFrame(opcode api.Opcode, payload []byte) error {
	mask := freshMask()
	n := protocol.BuildFrame(c.scratch, true, opcode, &mask, payload)
	if n == 0 {
		c.lastErr.Store(int32(api.CodeBufferFull))
		return api.ErrBufferFull
	}
	if err := c.writeAll(c.scratch[:n]); err != nil {
		return err
	}
	if c.met != nil {
		c.met.Frame(opcode, "out")
	}
	return nil
}

// SendText sends one unfragmented TEXT frame. Allowed only in OPEN.
func (c *Conn) SendText(payload []byte) error {
	return c.sendData(api.OpcodeText, payload)
}

// SendBinary sends one unfragmented BINARY frame. Allowed only in OPEN.
func (c *Conn) SendBinary(payload []byte) error {
	return c.sendData(api.OpcodeBinary, payload)
}

func (c *Conn) sendData(opcode api.Opcode, payload []byte) error {
	if c == nil {
		return api.ErrInvalidArgs
	}
	if c.State() != api.StateOpen {
		return c.soft(api.CodeNotReady)
	}
	return c.sendFrame(opcode, payload)
}

// SendPing sends a PING with up to 125 payload bytes.
func (c *Conn) SendPing(payload []byte) error {
	if c == nil {
		return api.ErrInvalidArgs
	}
	if len(payload) > protocol.MaxControlPayload {
		return api.ErrInvalidArgs
	}
	if c.State() != api.StateOpen {
		return c.soft(api.CodeNotReady)
	}
	return c.sendFrame(api.OpcodePing, payload)
}

// SendClose sends a CLOSE frame with the given code and reason and moves the
// connection to CLOSING. The reason is truncated so the total payload stays
// within the control-frame limit. Codes 1005, 1006 and 1015 never go on the
// wire.
func (c *Conn) SendClose(code api.CloseCode, reason string) error {
	if c == nil {
		return api.ErrInvalidArgs
	}
	if code == 1005 || code == 1006 || code == 1015 {
		return api.ErrInvalidArgs
	}
	st := c.State()
	if st != api.StateOpen && st != api.StateClosing {
		return c.soft(api.CodeNotReady)
	}

	var payload [2 + protocol.MaxControlPayload]byte
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	n := 2
	if len(reason) > protocol.MaxControlPayload-2 {
		reason = reason[:protocol.MaxControlPayload-2]
	}
	n += copy(payload[2:], reason)

	if err := c.sendFrame(api.OpcodeClose, payload[:n]); err != nil {
		return err
	}
	c.setState(api.StateClosing)
	return nil
}

// drainControl flushes queued auto-responses in order. Returns false when a
// send blocked and frames remain queued.
func (c *Conn) drainControl() bool {
	for c.ctrl.Length() > 0 {
		f := c.ctrl.Peek().(ctrlFrame)
		mask := freshMask()
		n := protocol.BuildFrame(c.scratch, true, f.opcode, &mask, f.payload)
		if n == 0 {
			// Control payloads are bounded; a full scratch means the
			// frame can never fit. Drop it.
			c.ctrl.Remove()
			continue
		}
		wr, err := c.sock.Write(c.scratch[:n])
		if err == transport.ErrAgain {
			return false
		}
		if err != nil || wr < n {
			// Auto-responses are best effort; the next user
			// operation will surface the socket failure.
			c.ctrl.Remove()
			continue
		}
		if c.met != nil {
			c.met.Frame(f.opcode, "out")
			c.met.Bytes("out", wr)
		}
		c.ctrl.Remove()
	}
	return true
}

// compact slides fully-consumed bytes out of the receive buffer. Must not be
// called while a payload is pinned.
func (c *Conn) compact() {
	if c.fedOff == 0 {
		return
	}
	copy(c.recvBuf, c.recvBuf[c.fedOff:c.recvSize])
	c.recvSize -= c.fedOff
	c.fedOff = 0
}

// parseNext feeds buffered bytes to the parser and handles one outcome.
// handled is false when more input is required.
func (c *Conn) parseNext(msg *api.Message) (handled bool, err error) {
	if c.fedOff >= c.recvSize {
		return false, nil
	}
	st, consumed, fr := c.parser.Feed(c.recvBuf[c.fedOff:c.recvSize])
	c.fedOff += consumed

	switch st {
	case protocol.StatusNeedMore:
		if c.pinRefs == 0 {
			c.compact()
		}
		return false, nil

	case protocol.StatusErrProtocol, protocol.StatusErrTooLarge:
		return true, c.fail(api.CodeProtocol, "frame parse error", nil)

	case protocol.StatusFrame:
		if c.met != nil {
			c.met.Frame(fr.Opcode, "in")
		}
		switch fr.Opcode {
		case api.OpcodePing:
			echo := make([]byte, len(fr.Payload))
			copy(echo, fr.Payload)
			c.ctrl.Add(ctrlFrame{opcode: api.OpcodePong, payload: echo})
			c.drainControl()
			c.compact()
			return true, c.soft(api.CodeNotReady)

		case api.OpcodePong:
			c.compact()
			return true, c.soft(api.CodeNotReady)

		case api.OpcodeClose:
			var payload [2]byte
			closeCode := uint16(api.CloseNormal)
			payload[0] = byte(closeCode >> 8)
			payload[1] = byte(closeCode)
			mask := freshMask()
			if n := protocol.BuildFrame(c.scratch, true, api.OpcodeClose, &mask, payload[:]); n > 0 {
				if wr, werr := c.sock.Write(c.scratch[:n]); werr == nil && c.met != nil {
					c.met.Frame(api.OpcodeClose, "out")
					c.met.Bytes("out", wr)
				}
			}
			c.setState(api.StateClosed)
			return true, c.soft(api.CodeClosed)

		default:
			msg.Type = fr.Opcode
			msg.Payload = fr.Payload
			msg.Final = fr.Final
			c.pinRefs = 1
			c.pinned = fr.Payload
			return true, nil
		}
	}
	return false, nil
}

// Recv waits up to timeoutMs for the next data frame. Control frames are
// consumed internally: PING is answered with a PONG echo and PONG is
// discarded, both reporting not-ready so the caller retries; CLOSE is echoed
// and reported as closed. On success the returned payload aliases the
// receive buffer (or the parser's reassembly buffer for a frame that spanned
// several reads) and stays pinned until ReleasePayload.
func (c *Conn) Recv(msg *api.Message, timeoutMs int) error {
	if c == nil || msg == nil {
		return api.ErrInvalidArgs
	}
	if c.State() != api.StateOpen {
		return c.soft(api.CodeNotReady)
	}
	if c.pinRefs > 0 {
		return c.soft(api.CodeNotReady)
	}
	if !c.drainControl() {
		return c.soft(api.CodeNotReady)
	}

	// A previous read may have buffered a complete frame already.
	if handled, err := c.parseNext(msg); handled {
		return err
	}

	ready, err := c.waiter.Wait(timeoutMs)
	if err != nil {
		return c.fail(api.CodeNetwork, "readiness wait failed", err)
	}
	if !ready {
		return c.soft(api.CodeTimeout)
	}

	if c.recvSize == len(c.recvBuf) {
		// No room and no parsable frame: the peer is stalling inside a
		// frame larger than the buffer can ever hold.
		return c.fail(api.CodeProtocol, "receive buffer exhausted", nil)
	}
	n, err := c.sock.Read(c.recvBuf[c.recvSize:])
	if err != nil {
		switch err {
		case transport.ErrAgain:
			return c.soft(api.CodeTimeout)
		case transport.ErrEOF:
			c.setState(api.StateClosed)
			return c.soft(api.CodeClosed)
		default:
			return c.fail(api.CodeNetwork, "read failed", err)
		}
	}
	c.recvSize += n
	if c.met != nil {
		c.met.Bytes("in", n)
	}

	if handled, err := c.parseNext(msg); handled {
		return err
	}
	return c.soft(api.CodeNotReady)
}

// RetainPayload increments the pin count so another consumer may hold the
// current payload view. No-op when nothing is pinned.
func (c *Conn) RetainPayload() {
	if c == nil || c.pinRefs == 0 {
		return
	}
	c.pinRefs++
}

// ReleasePayload decrements the pin count. When it reaches zero the consumed
// prefix is slid out of the receive buffer; this is the only point where the
// buffer is compacted while a view exists.
func (c *Conn) ReleasePayload() {
	if c == nil || c.pinRefs == 0 {
		return
	}
	c.pinRefs--
	if c.pinRefs == 0 {
		c.pinned = nil
		c.compact()
	}
}

// Close releases the connection. In OPEN a best-effort CLOSE(1000) is sent
// first. Idempotent: closing a closed or errored connection is valid.
func (c *Conn) Close() error {
	if c == nil {
		return api.ErrInvalidArgs
	}
	st := c.State()
	if st == api.StateOpen {
		var payload [2]byte
		closeCode := uint16(api.CloseNormal)
		payload[0] = byte(closeCode >> 8)
		payload[1] = byte(closeCode)
		mask := freshMask()
		if n := protocol.BuildFrame(c.scratch, true, api.OpcodeClose, &mask, payload[:]); n > 0 {
			_, _ = c.sock.Write(c.scratch[:n])
		}
	}
	// scratch is non-nil only until the first Close.
	firstClose := c.scratch != nil
	c.pinRefs = 0
	c.pinned = nil
	if c.waiter != nil {
		_ = c.waiter.Close()
	}
	if c.sock != nil {
		_ = c.sock.Close()
	}
	if c.scratch != nil {
		c.scratchPool.PutBuffer(c.scratch)
		c.scratch = nil
	}
	if st != api.StateClosed {
		c.setState(api.StateClosed)
	}
	// Every state past CONNECTING was reached through OPEN, so the gauge
	// counts this connection down once.
	if c.met != nil && firstClose && st != api.StateInit && st != api.StateConnecting {
		c.met.ConnClosed()
	}
	return nil
}
