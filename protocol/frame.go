// File: protocol/frame.go
// Package protocol implements the RFC 6455 wire codec: an incremental
// zero-copy frame parser, a frame builder with client masking, and the
// opening-handshake codec. No extensions are negotiated, so RSV bits are
// always rejected.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "github.com/momentics/zerows/api"

// Header layout limits.
const (
	// MaxHeaderSize is the worst-case frame header: 2 base bytes,
	// 8 extended-length bytes and a 4-byte mask key.
	MaxHeaderSize = 14

	// MaxControlPayload bounds PING/PONG/CLOSE payloads.
	MaxControlPayload = 125

	finBit  = 0x80
	maskBit = 0x80
)

// Frame is a parsed frame view. Payload aliases either the slice handed to
// Parser.Feed or the parser's internal spill buffer; it is valid until the
// next Feed call.
type Frame struct {
	Opcode  api.Opcode
	Payload []byte
	Final   bool
}

// MaskBytes XORs src into dst with the 4-byte key, starting at key offset
// pos, and returns the key position after the last byte. dst and src may
// alias for in-place unmasking.
func MaskBytes(dst, src []byte, key [4]byte, pos int) int {
	for i := range src {
		dst[i] = src[i] ^ key[(pos+i)&3]
	}
	return (pos + len(src)) & 3
}

// FrameOverhead returns the encoded header size for a payload of the given
// length.
func FrameOverhead(payloadLen int, masked bool) int {
	n := 2
	switch {
	case payloadLen <= 125:
	case payloadLen <= 0xFFFF:
		n += 2
	default:
		n += 8
	}
	if masked {
		n += 4
	}
	return n
}
