package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/resource"
)

// Buffer is a fixed size mutable byte array shared with scripts.
type Buffer struct{ object }

func (l *Lua) newBuffer(h resource.Handle) *Buffer {
	b := &Buffer{object: object{lua: l, kind: bridge.KindBuffer, handle: h}}
	return track(b, &b.object)
}

// Len returns the size in bytes, or -1 when closed.
func (b *Buffer) Len() int {
	h, err := b.borrow()
	if err != nil {
		return -1
	}
	return bridge.BufferLen(h)
}

// ReadBytes copies n bytes starting at offset.
func (b *Buffer) ReadBytes(offset, n int) ([]byte, error) {
	h, err := b.borrow()
	if err != nil {
		return nil, err
	}
	return bridge.BufferReadBytes(h, offset, n).Unwrap()
}

// WriteBytes copies data into the buffer at offset.
func (b *Buffer) WriteBytes(offset int, data []byte) error {
	h, err := b.borrow()
	if err != nil {
		return err
	}
	_, err = bridge.BufferWriteBytes(h, offset, data).Unwrap()
	return err
}

// Bytes returns a copy of the whole buffer.
func (b *Buffer) Bytes() ([]byte, error) {
	h, err := b.borrow()
	if err != nil {
		return nil, err
	}
	return bridge.BufferBytes(h).Unwrap()
}
