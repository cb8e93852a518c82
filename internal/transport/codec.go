package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/framerelay/relay/internal/model"
)

// Framing names accepted by ParseCodec.
const (
	FramingRaw            = "raw"
	FramingLengthPrefixed = "length-prefixed"
)

// lengthPrefixSize is the size of the big-endian length header.
const lengthPrefixSize = 4

// Codec splits a byte stream into frames.
type Codec interface {
	// ReadFrame reads the next frame from r. buf is scratch space of the
	// maximum frame size owned by the caller; the returned frame never
	// aliases it.
	ReadFrame(r io.Reader, buf []byte) (Frame, error)

	// WriteFrame writes f to w.
	WriteFrame(w io.Writer, f Frame) error

	// Name returns the framing name.
	Name() string
}

// ParseCodec returns the codec for the given framing name.
// An empty name selects raw framing.
func ParseCodec(name string, maxFrameSize int) (Codec, error) {
	switch name {
	case "", FramingRaw:
		return RawCodec{}, nil
	case FramingLengthPrefixed:
		return NewLengthPrefixedCodec(maxFrameSize), nil
	default:
		return nil, fmt.Errorf("unknown framing %q", name)
	}
}

// RawCodec treats every completed read as one frame. A peer message larger
// than the read buffer, or several small messages arriving together, do not
// map one-to-one onto frames.
type RawCodec struct{}

// ReadFrame performs a single read.
func (RawCodec) ReadFrame(r io.Reader, buf []byte) (Frame, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			f := make(Frame, n)
			copy(f, buf[:n])
			return f, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteFrame writes the frame bytes as they are.
func (RawCodec) WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(f)
	return err
}

// Name returns "raw".
func (RawCodec) Name() string { return FramingRaw }

// LengthPrefixedCodec frames each message with a 4-byte big-endian length.
type LengthPrefixedCodec struct {
	maxFrameSize int
}

// NewLengthPrefixedCodec creates a codec that rejects frames larger than
// maxFrameSize. A non-positive size selects DefaultMaxFrameSize.
func NewLengthPrefixedCodec(maxFrameSize int) *LengthPrefixedCodec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedCodec{maxFrameSize: maxFrameSize}
}

// ReadFrame reads one length header and its payload.
func (c *LengthPrefixedCodec) ReadFrame(r io.Reader, _ []byte) (Frame, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(c.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", model.ErrFrameTooLarge, n, c.maxFrameSize)
	}

	f := make(Frame, n)
	if _, err := io.ReadFull(r, f); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return f, nil
}

// WriteFrame writes the header and payload with a single vectored write
// when w supports it.
func (c *LengthPrefixedCodec) WriteFrame(w io.Writer, f Frame) error {
	if len(f) > c.maxFrameSize {
		return fmt.Errorf("%w: %d > %d", model.ErrFrameTooLarge, len(f), c.maxFrameSize)
	}

	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))

	bufs := net.Buffers{hdr[:], f}
	_, err := bufs.WriteTo(w)
	return err
}

// Name returns "length-prefixed".
func (c *LengthPrefixedCodec) Name() string { return FramingLengthPrefixed }

// MaxFrameSize returns the largest accepted payload.
func (c *LengthPrefixedCodec) MaxFrameSize() int { return c.maxFrameSize }
