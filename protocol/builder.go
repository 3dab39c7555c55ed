// File: protocol/builder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame serialization into a caller-managed buffer. The client role always
// masks; passing a nil key emits an unmasked (server-style) frame for tests
// and loopback tooling.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/zerows/api"
)

// BuildFrame serializes one frame into dst and returns the encoded length,
// or 0 when dst is too small. Payload bytes are XOR-masked while being
// copied, leaving the caller's payload untouched.
func BuildFrame(dst []byte, fin bool, opcode api.Opcode, maskKey *[4]byte, payload []byte) int {
	need := FrameOverhead(len(payload), maskKey != nil) + len(payload)
	if need > len(dst) {
		return 0
	}

	var b0 byte
	if fin {
		b0 = finBit
	}
	dst[0] = b0 | byte(opcode&0x0F)

	var mb byte
	if maskKey != nil {
		mb = maskBit
	}
	pos := 2
	switch {
	case len(payload) <= 125:
		dst[1] = byte(len(payload)) | mb
	case len(payload) <= 0xFFFF:
		dst[1] = 126 | mb
		binary.BigEndian.PutUint16(dst[2:], uint16(len(payload)))
		pos = 4
	default:
		dst[1] = 127 | mb
		binary.BigEndian.PutUint64(dst[2:], uint64(len(payload)))
		pos = 10
	}

	if maskKey != nil {
		copy(dst[pos:], maskKey[:])
		pos += 4
		MaskBytes(dst[pos:pos+len(payload)], payload, *maskKey, 0)
	} else {
		copy(dst[pos:], payload)
	}
	return need
}
