package transport

import (
	"net"
	"time"

	"github.com/framerelay/relay/internal/model"
)

// StreamConn is a Conn over a net.Conn byte stream.
type StreamConn struct {
	conn  net.Conn
	codec Codec

	// buf is only touched by the reading goroutine.
	buf []byte
}

// NewStreamConn wraps c. A nil codec selects RawCodec.
func NewStreamConn(c net.Conn, codec Codec, maxFrameSize int) *StreamConn {
	if codec == nil {
		codec = RawCodec{}
	}
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &StreamConn{
		conn:  c,
		codec: codec,
		buf:   make([]byte, maxFrameSize),
	}
}

func (s *StreamConn) ReadFrame() (Frame, error) {
	return s.codec.ReadFrame(s.conn, s.buf)
}

func (s *StreamConn) WriteFrame(f Frame) error {
	return s.codec.WriteFrame(s.conn, f)
}

func (s *StreamConn) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *StreamConn) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *StreamConn) Close() error {
	return s.conn.Close()
}

func (s *StreamConn) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *StreamConn) Kind() model.TransportKind {
	return model.TransportTCP
}

// NetConn returns the wrapped connection.
func (s *StreamConn) NetConn() net.Conn {
	return s.conn
}
