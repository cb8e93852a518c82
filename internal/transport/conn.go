// Package transport adapts stream sockets and WebSocket connections to the
// frame-oriented Conn used by the relay.
package transport

import (
	"time"

	"github.com/framerelay/relay/internal/model"
)

// DefaultMaxFrameSize is the default read buffer size and therefore the
// largest frame a single read can produce.
const DefaultMaxFrameSize = 64 * 1024

// Frame is one opaque unit of bytes read from or written to a connection.
// Once handed to the relay a frame is shared between destinations and must
// not be modified.
type Frame []byte

// Conn is a bidirectional frame connection.
//
// ReadFrame must only be called from one goroutine and WriteFrame from one
// (possibly different) goroutine. Close and the deadline setters may be
// called concurrently with both.
type Conn interface {
	// ReadFrame blocks until the next frame is available.
	// It returns io.EOF when the peer closed the connection cleanly.
	ReadFrame() (Frame, error)

	// WriteFrame writes the whole frame or returns an error.
	WriteFrame(f Frame) error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// Close closes the connection. Blocked reads and writes return an error.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string

	// Kind reports the transport kind of the connection.
	Kind() model.TransportKind
}
