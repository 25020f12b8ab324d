// Package secret holds sensitive byte material (PINs, PUKs, cached
// credentials) in buffers that are explicitly zeroized when no longer
// needed, instead of waiting for the garbage collector.
package secret

// Buffer owns a slice of sensitive bytes. Call Wipe as soon as the material
// is no longer needed; every byte is overwritten before the slice is
// released.
type Buffer struct {
	data []byte
}

// New allocates an empty buffer of the given size.
func New(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// From copies src into a fresh buffer. The caller keeps responsibility for
// wiping src.
func From(src []byte) *Buffer {
	b := &Buffer{data: make([]byte, len(src))}
	copy(b.data, src)
	return b
}

// Bytes exposes the underlying slice. The slice aliases the buffer's
// storage: it becomes all-zero once Wipe is called, and must not be retained
// past the buffer's lifetime.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the buffer length, 0 for a nil buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Equal reports whether the buffer holds exactly the given bytes.
func (b *Buffer) Equal(other []byte) bool {
	if b == nil {
		return len(other) == 0
	}
	if len(b.data) != len(other) {
		return false
	}
	var diff byte
	for i := range b.data {
		diff |= b.data[i] ^ other[i]
	}
	return diff == 0
}

// Wipe overwrites the buffer with zeros and truncates it. Safe to call more
// than once and on a nil buffer.
func (b *Buffer) Wipe() {
	if b == nil {
		return
	}
	Zero(b.data)
	b.data = nil
}

// Zero overwrites buf in place.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
