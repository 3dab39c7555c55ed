// File: protocol/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental WebSocket frame parser. Bytes are fed in arbitrary chunks; the
// parser accumulates the header progressively (the needed count grows as the
// extended-length and mask fields are discovered) and exposes the payload as
// a zero-copy view into the fed slice whenever the whole payload arrived in
// one call. Payloads that straddle feeds spill into an internal buffer so the
// emitted frame sequence is identical regardless of chunking.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/zerows/api"
)

// Status is the outcome of one Feed call.
type Status int

const (
	// StatusNeedMore means the input ran out mid-header or mid-payload.
	StatusNeedMore Status = iota
	// StatusFrame means one complete frame was parsed.
	StatusFrame
	// StatusErrProtocol means the input violated RFC 6455 framing rules.
	StatusErrProtocol
	// StatusErrTooLarge means the announced payload exceeds the limit.
	StatusErrTooLarge
)

// frameHeader is the decoded fixed part of the current frame.
type frameHeader struct {
	fin        bool
	opcode     api.Opcode
	masked     bool
	payloadLen uint64
	maskKey    [4]byte
}

// Parser holds the incremental state for one connection direction.
type Parser struct {
	maxFrame uint64

	hdr     [MaxHeaderSize]byte
	hdrHave int
	hdrNeed int
	hdrDone bool
	cur     frameHeader

	payloadRead uint64
	maskPos     int
	spill       []byte

	inFragmented bool
	fragOpcode   api.Opcode
	textState    UTF8State
}

// NewParser returns a parser enforcing maxFrameSize (0 means the 1 MiB
// default).
func NewParser(maxFrameSize uint64) *Parser {
	if maxFrameSize == 0 {
		maxFrameSize = api.DefaultMaxFrameSize
	}
	return &Parser{maxFrame: maxFrameSize, hdrNeed: 2}
}

// Reset drops all frame and fragmentation state.
func (p *Parser) Reset() {
	p.resetFrame()
	p.inFragmented = false
	p.fragOpcode = 0
	p.textState.Reset()
}

// resetFrame prepares for the next frame header, keeping message-level state.
func (p *Parser) resetFrame() {
	p.hdrHave = 0
	p.hdrNeed = 2
	p.hdrDone = false
	p.payloadRead = 0
	p.maskPos = 0
	p.spill = p.spill[:0]
}

// parseHeader inspects the accumulated header bytes. It returns StatusFrame
// when the header is complete, StatusNeedMore when hdrNeed grew, or an error
// status.
func (p *Parser) parseHeader() Status {
	if p.hdrHave < p.hdrNeed {
		return StatusNeedMore
	}
	b0, b1 := p.hdr[0], p.hdr[1]
	p.cur.fin = b0&finBit != 0
	rsv := (b0 >> 4) & 0x07
	p.cur.opcode = api.Opcode(b0 & 0x0F)
	p.cur.masked = b1&maskBit != 0
	len7 := uint64(b1 & 0x7F)

	if rsv != 0 {
		return StatusErrProtocol
	}
	if p.cur.opcode.Reserved() {
		return StatusErrProtocol
	}

	need := 2
	switch {
	case len7 <= 125:
		p.cur.payloadLen = len7
	case len7 == 126:
		need += 2
		if p.hdrHave < need {
			p.hdrNeed = need
			return StatusNeedMore
		}
		p.cur.payloadLen = uint64(binary.BigEndian.Uint16(p.hdr[2:]))
	default: // 127
		need += 8
		if p.hdrHave < need {
			p.hdrNeed = need
			return StatusNeedMore
		}
		if p.hdr[2]&0x80 != 0 {
			return StatusErrProtocol
		}
		p.cur.payloadLen = binary.BigEndian.Uint64(p.hdr[2:])
	}

	lenEnd := need
	if p.cur.masked {
		need += 4
		if p.hdrHave < need {
			p.hdrNeed = need
			return StatusNeedMore
		}
		copy(p.cur.maskKey[:], p.hdr[lenEnd:lenEnd+4])
	}

	if p.cur.opcode.IsControl() {
		if !p.cur.fin {
			return StatusErrProtocol
		}
		if p.cur.payloadLen > MaxControlPayload {
			return StatusErrProtocol
		}
	}
	if p.cur.payloadLen > p.maxFrame {
		return StatusErrTooLarge
	}
	return StatusFrame
}

// Feed consumes bytes from data and returns the parse status, the number of
// bytes consumed, and on StatusFrame the parsed frame. On StatusNeedMore the
// consumed count covers everything buffered so far; callers must not re-feed
// those bytes.
func (p *Parser) Feed(data []byte) (Status, int, Frame) {
	consumed := 0

	for !p.hdrDone {
		for p.hdrHave < p.hdrNeed && consumed < len(data) {
			p.hdr[p.hdrHave] = data[consumed]
			p.hdrHave++
			consumed++
		}
		st := p.parseHeader()
		switch st {
		case StatusFrame:
			p.hdrDone = true
		case StatusNeedMore:
			if consumed == len(data) {
				return StatusNeedMore, consumed, Frame{}
			}
			// hdrNeed grew; pull more bytes now.
		default:
			return st, consumed, Frame{}
		}
	}

	var payload []byte
	if p.cur.payloadLen > 0 {
		remaining := p.cur.payloadLen - p.payloadRead
		avail := uint64(len(data) - consumed)

		if p.payloadRead == 0 && avail >= remaining && len(p.spill) == 0 {
			// Fast path: whole payload inside this slice, zero-copy.
			payload = data[consumed : consumed+int(remaining)]
			consumed += int(remaining)
			p.payloadRead = p.cur.payloadLen
			if p.cur.masked {
				p.maskPos = MaskBytes(payload, payload, p.cur.maskKey, p.maskPos)
			}
		} else {
			take := remaining
			if avail < take {
				take = avail
			}
			chunk := data[consumed : consumed+int(take)]
			if p.spill == nil {
				p.spill = make([]byte, 0, p.cur.payloadLen)
			}
			off := len(p.spill)
			p.spill = append(p.spill, chunk...)
			if p.cur.masked {
				seg := p.spill[off:]
				p.maskPos = MaskBytes(seg, seg, p.cur.maskKey, p.maskPos)
			}
			consumed += int(take)
			p.payloadRead += take
			if p.payloadRead < p.cur.payloadLen {
				return StatusNeedMore, consumed, Frame{}
			}
			payload = p.spill
		}
	}

	st := p.finishFrame(payload)
	if st != StatusFrame {
		return st, consumed, Frame{}
	}
	fr := Frame{Opcode: p.cur.opcode, Payload: payload, Final: p.cur.fin}
	p.resetFrame()
	return StatusFrame, consumed, fr
}

// finishFrame applies the message-level rules once the payload is complete:
// fragmentation ordering, TEXT UTF-8, CLOSE payload shape.
func (p *Parser) finishFrame(payload []byte) Status {
	op := p.cur.opcode

	if op == api.OpcodeClose {
		return p.checkClosePayload(payload)
	}
	if op.IsControl() {
		return StatusFrame
	}

	if op == api.OpcodeContinuation {
		if !p.inFragmented {
			return StatusErrProtocol
		}
		if p.fragOpcode == api.OpcodeText {
			if !p.textState.Feed(payload) {
				return StatusErrProtocol
			}
			if p.cur.fin && !p.textState.Complete() {
				return StatusErrProtocol
			}
		}
		if p.cur.fin {
			p.inFragmented = false
			p.textState.Reset()
		}
		return StatusFrame
	}

	// TEXT or BINARY.
	if p.inFragmented {
		return StatusErrProtocol
	}
	if op == api.OpcodeText {
		p.textState.Reset()
		if !p.textState.Feed(payload) {
			return StatusErrProtocol
		}
		if p.cur.fin && !p.textState.Complete() {
			return StatusErrProtocol
		}
	}
	if !p.cur.fin {
		p.inFragmented = true
		p.fragOpcode = op
	} else {
		p.textState.Reset()
	}
	return StatusFrame
}

// checkClosePayload enforces the CLOSE frame rules: empty, or a two-byte
// wire-valid code followed by a UTF-8 reason.
func (p *Parser) checkClosePayload(payload []byte) Status {
	if len(payload) == 0 {
		return StatusFrame
	}
	if len(payload) == 1 {
		return StatusErrProtocol
	}
	code := api.CloseCode(binary.BigEndian.Uint16(payload))
	if !code.ValidOnWire() {
		return StatusErrProtocol
	}
	if !ValidUTF8(payload[2:]) {
		return StatusErrProtocol
	}
	return StatusFrame
}
