// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size scratch buffers for the send path. One buffer covers a full
// frame: max payload plus worst-case header.

package pool

import "sync"

// BytePool hands out fixed-size byte slices, recycling them through a
// sync.Pool.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool of buffers of exactly size bytes.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.p.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the buffer size this pool hands out.
func (bp *BytePool) Size() int { return bp.size }

// GetBuffer returns a buffer of the pool's size.
func (bp *BytePool) GetBuffer() []byte {
	return *(bp.p.Get().(*[]byte))
}

// PutBuffer returns a buffer to the pool. Buffers with less capacity than the
// pool size are dropped for the GC; larger ones are resliced to the pool size
// and kept.
func (bp *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.p.Put(&buf)
}
