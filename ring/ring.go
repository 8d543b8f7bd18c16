// Copyright © 2024 Vortex Studio.

// Package ring implements the byte ring and SPSC queue of spec 4.C: a
// single-producer/single-consumer growable byte ring for demuxed packet
// payloads, and a fixed-capacity lock-free queue for unique-owned values
// used throughout the stream pipeline and per-output frame handoff.
package ring

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// ByteRing is a power-of-two-capacity byte ring. It holds no
// synchronization: the read/write cursors and the buffered size are plain
// fields that both Write and Read/Skip update, and Write may replace the
// backing array, so a writer and a reader on different goroutines need an
// external lock.
type ByteRing struct {
	buf   []byte
	read  int
	write int
	size  int // number of valid bytes currently buffered.
}

// NewByteRing returns a ring with an initial capacity rounded up to the
// next power of two (minimum 64).
func NewByteRing(initialCapacity int) *ByteRing {
	cap := ceilPow2(initialCapacity)
	if cap < 64 {
		cap = 64
	}
	return &ByteRing{buf: make([]byte, cap)}
}

func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Capacity returns the ring's current backing size.
func (r *ByteRing) Capacity() int { return len(r.buf) }

// Size returns the number of buffered, unread bytes.
func (r *ByteRing) Size() int { return r.size }

// AvailableSpace returns how many more bytes can be written before growth
// is required.
func (r *ByteRing) AvailableSpace() int { return len(r.buf) - r.size }

// Clear discards all buffered content without shrinking the backing array.
func (r *ByteRing) Clear() {
	r.read, r.write, r.size = 0, 0, 0
}

// Reserve grows the ring, if needed, so that at least n additional bytes
// can be written without a subsequent Write needing to grow.
func (r *ByteRing) Reserve(n int) {
	if n > r.AvailableSpace() {
		r.grow(r.size + n)
	}
}

// grow linearizes the ring's contents at index 0 in a backing array of at
// least newMinSize bytes (spec 4.C: "expand to max(2*capacity, ceil_pow2
// (size+need+1))", then relinearize).
func (r *ByteRing) grow(newMinSize int) {
	target := len(r.buf) * 2
	needed := ceilPow2(newMinSize + 1)
	if needed > target {
		target = needed
	}
	linear := make([]byte, target)
	r.copyOutLocked(linear)
	r.buf = linear
	r.read = 0
	r.write = r.size
}

// copyOutLocked copies the ring's current valid bytes, oldest first, into
// dst (which must be at least r.size long).
func (r *ByteRing) copyOutLocked(dst []byte) {
	if r.size == 0 {
		return
	}
	n := copy(dst, r.buf[r.read:])
	if n < r.size {
		copy(dst[n:], r.buf[:r.size-n])
	}
}

// Write appends span, growing the ring first if there isn't enough room.
// It always consumes the entire span and returns len(span).
func (r *ByteRing) Write(span []byte) int {
	if len(span) > r.AvailableSpace() {
		r.grow(r.size + len(span))
	}
	n := copy(r.buf[r.write:], span)
	if n < len(span) {
		copy(r.buf, span[n:])
	}
	r.write = (r.write + len(span)) % len(r.buf)
	r.size += len(span)
	return len(span)
}

// Read copies up to len(dst) buffered bytes into dst, oldest first, and
// advances past them. Returns the number of bytes actually copied.
func (r *ByteRing) Read(dst []byte) int {
	n := r.Peek(dst)
	r.Skip(n)
	return n
}

// Peek copies up to len(dst) buffered bytes into dst without advancing.
func (r *ByteRing) Peek(dst []byte) int {
	n := len(dst)
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return 0
	}
	copied := copy(dst, r.buf[r.read:])
	if copied < n {
		copy(dst[copied:], r.buf[:n-copied])
	}
	return n
}

// Skip advances past n buffered bytes without copying them (discarding
// them), clamped to the buffered size.
func (r *ByteRing) Skip(n int) {
	if n > r.size {
		n = r.size
	}
	r.read = (r.read + n) % len(r.buf)
	r.size -= n
}

// Sample is the set of fixed-width numeric types read_as/write_as may
// operate on.
type Sample interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// WriteAs encodes one sample of type T in little-endian byte order and
// writes it.
func WriteAs[T Sample](r *ByteRing, v T) {
	r.Write(encodeSample(v))
}

// ReadAs decodes one sample of type T from the ring, advancing past it.
// Returns false if fewer than sizeof(T) bytes were buffered.
func ReadAs[T Sample](r *ByteRing) (T, bool) {
	var zero T
	buf := make([]byte, sampleSize(zero))
	if r.Read(buf) < len(buf) {
		return zero, false
	}
	return decodeSample[T](buf), true
}

func sampleSize(v any) int {
	switch v.(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int64, uint64, float64:
		return 8
	default:
		return 0
	}
}

func encodeSample[T Sample](v T) []byte {
	switch x := any(v).(type) {
	case int8:
		return []byte{byte(x)}
	case uint8:
		return []byte{x}
	case int16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(x))
		return b
	case uint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, x)
		return b
	case int32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(x))
		return b
	case uint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, x)
		return b
	case float32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
		return b
	case int64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(x))
		return b
	case uint64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, x)
		return b
	case float64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
		return b
	default:
		return nil
	}
}

func decodeSample[T Sample](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return any(int8(b[0])).(T)
	case uint8:
		return any(b[0]).(T)
	case int16:
		return any(int16(binary.LittleEndian.Uint16(b))).(T)
	case uint16:
		return any(binary.LittleEndian.Uint16(b)).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(b))).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(b)).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(b))).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(b))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(b)).(T)
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(b))).(T)
	default:
		return zero
	}
}
