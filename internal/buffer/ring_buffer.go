// Package buffer provides the client's playback ring buffer.
package buffer

import (
	"io"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer of fixed capacity.
// Received frames are written at the tail and consumed from the head by the
// player. When a write does not fit, the oldest unread bytes are overwritten
// and counted as dropped.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	head    int
	size    int
	dropped uint64
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p, overwriting the oldest data when the buffer is full.
// It always reports len(p) written.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	c := len(rb.buf)
	if n >= c {
		rb.dropped += uint64(rb.size + n - c)
		copy(rb.buf, p[n-c:])
		rb.head = 0
		rb.size = c
		return n, nil
	}

	if over := rb.size + n - c; over > 0 {
		rb.head = (rb.head + over) % c
		rb.size -= over
		rb.dropped += uint64(over)
	}

	tail := (rb.head + rb.size) % c
	k := copy(rb.buf[tail:], p)
	copy(rb.buf, p[k:])
	rb.size += n
	return n, nil
}

// Read consumes up to len(p) of the oldest bytes. It returns io.EOF when the
// buffer is empty.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return 0, io.EOF
	}

	n := rb.peek(p)
	rb.head = (rb.head + n) % len(rb.buf)
	rb.size -= n
	return n, nil
}

// ReadAll returns a copy of the unread data without consuming it.
func (rb *RingBuffer) ReadAll() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]byte, rb.size)
	rb.peek(out)
	return out
}

// peek copies from the head into p. The caller holds mu.
func (rb *RingBuffer) peek(p []byte) int {
	n := min(len(p), rb.size)
	end := rb.head + n
	if end <= len(rb.buf) {
		return copy(p, rb.buf[rb.head:end])
	}
	k := copy(p, rb.buf[rb.head:])
	copy(p[k:n], rb.buf[:end-len(rb.buf)])
	return n
}

// Reset discards all unread data. The dropped counter is kept.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.head = 0
	rb.size = 0
}

// Len returns the number of unread bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}

// Dropped returns the number of bytes overwritten before they were read.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.dropped
}
