// Package client implements the relay client: it connects to a relay,
// streams frames from a capture source and collects received frames in a
// playback buffer.
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/buffer"
	"github.com/framerelay/relay/internal/capture"
	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

const (
	// DefaultPlaybackBufferSize holds about one second of mono float32 audio.
	DefaultPlaybackBufferSize = 44100 * 4

	// DefaultMaxQueueFrames caps the send queue; the oldest frame is dropped
	// when the connection cannot keep up.
	DefaultMaxQueueFrames = 256

	// DefaultDialTimeout bounds Connect when ctx has no deadline.
	DefaultDialTimeout = 10 * time.Second

	// previewBytes is how many leading bytes of each received frame are logged.
	previewBytes = 10

	flushPoll = 5 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	// Codec frames the stream; nil selects raw framing.
	Codec transport.Codec

	MaxFrameSize       int
	MaxQueueFrames     int
	PlaybackBufferSize int
	WriteTimeout       time.Duration
	DialTimeout        time.Duration

	// OnFrame, if set, is called from the receive loop for every frame.
	OnFrame func(frame []byte)

	Logger *logrus.Entry
}

// Stats are the client's traffic counters.
type Stats struct {
	FramesSent     uint64
	BytesSent      uint64
	FramesReceived uint64
	BytesReceived  uint64
	FramesDropped  uint64
}

// connection is one live link to the relay.
type connection struct {
	conn    transport.Conn
	out     *relay.Outbox
	writing atomic.Bool
	closing atomic.Bool
	done    chan struct{}
	loops   sync.WaitGroup
}

// Client is a relay client. Its methods are safe for concurrent use.
type Client struct {
	source   capture.Source
	opts     Options
	log      *logrus.Entry
	playback *buffer.RingBuffer

	// mu serialises connect and disconnect; senders only load cur.
	mu        sync.Mutex
	cur       atomic.Pointer[connection]
	capturing atomic.Bool

	framesSent atomic.Uint64
	bytesSent  atomic.Uint64
	framesRecv atomic.Uint64
	bytesRecv  atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a disconnected client capturing from source.
func New(source capture.Source, opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = transport.RawCodec{}
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = transport.DefaultMaxFrameSize
	}
	if opts.MaxQueueFrames == 0 {
		opts.MaxQueueFrames = DefaultMaxQueueFrames
	}
	if opts.PlaybackBufferSize <= 0 {
		opts.PlaybackBufferSize = DefaultPlaybackBufferSize
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = relay.DefaultWriteTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Client{
		source:   source,
		opts:     opts,
		log:      log.WithField("component", "client"),
		playback: buffer.NewRingBuffer(opts.PlaybackBufferSize),
	}
}

// Connect dials target, a host:port or ws:// URL, and starts the send and
// receive loops.
func (c *Client) Connect(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur.Load() != nil {
		return model.ErrAlreadyConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	c.log.WithField("target", target).Info("connecting")
	conn, err := transport.Dial(ctx, target, c.opts.Codec, c.opts.MaxFrameSize)
	if err != nil {
		return err
	}

	cn := &connection{
		conn: conn,
		out:  relay.NewOutbox(c.opts.MaxQueueFrames, relay.OverflowDropOldest),
		done: make(chan struct{}),
	}
	cn.loops.Add(2)
	go c.receiveLoop(cn)
	go c.sendLoop(cn)
	c.cur.Store(cn)

	c.log.WithFields(logrus.Fields{
		"target":  target,
		"framing": c.opts.Codec.Name(),
	}).Info("connected")
	return nil
}

// IsConnected reports whether the client has a live connection.
func (c *Client) IsConnected() bool {
	return c.cur.Load() != nil
}

// Done returns a channel closed when the current connection ends. It returns
// nil when the client is not connected.
func (c *Client) Done() <-chan struct{} {
	cn := c.cur.Load()
	if cn == nil {
		return nil
	}
	return cn.done
}

// Send queues frame for the relay without blocking.
func (c *Client) Send(frame []byte) error {
	cn := c.cur.Load()
	if cn == nil {
		return model.ErrNotConnected
	}
	return cn.out.Push(transport.Frame(frame))
}

// StartCapture starts the capture source, sending each captured frame.
func (c *Client) StartCapture() error {
	if !c.IsConnected() {
		return model.ErrNotConnected
	}
	if err := c.source.Start(c.onCapture); err != nil {
		return err
	}
	c.capturing.Store(true)
	c.log.WithField("source", c.source.Name()).Info("capture started")
	return nil
}

// StopCapture stops the capture source.
func (c *Client) StopCapture() error {
	if err := c.source.Stop(); err != nil {
		return err
	}
	c.capturing.Store(false)
	c.log.WithField("source", c.source.Name()).Info("capture stopped")
	return nil
}

// IsCapturing reports whether the capture source is running.
func (c *Client) IsCapturing() bool {
	return c.capturing.Load()
}

// Playback returns the buffer that receives every frame from the relay.
func (c *Client) Playback() *buffer.RingBuffer {
	return c.playback
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		FramesSent:     c.framesSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		FramesReceived: c.framesRecv.Load(),
		BytesReceived:  c.bytesRecv.Load(),
		FramesDropped:  c.dropped.Load(),
	}
}

// Flush waits until every queued frame has been written or ctx expires.
func (c *Client) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPoll)
	defer ticker.Stop()

	for {
		cn := c.cur.Load()
		if cn == nil {
			return model.ErrNotConnected
		}
		if cn.out.Len() == 0 && !cn.writing.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cn.done:
			return model.ErrNotConnected
		case <-ticker.C:
		}
	}
}

// Close stops capture and closes the connection, waiting for both loops.
func (c *Client) Close() error {
	if c.IsCapturing() {
		if err := c.StopCapture(); err != nil && !errors.Is(err, model.ErrNotCapturing) {
			c.log.WithError(err).Warn("stop capture failed")
		}
	}

	cn := c.cur.Load()
	if cn == nil {
		return nil
	}
	c.disconnect(cn)
	cn.loops.Wait()
	return nil
}

func (c *Client) onCapture(frame []byte) {
	if err := c.Send(frame); err != nil {
		c.log.WithError(err).Debug("captured frame discarded")
	}
}

func (c *Client) receiveLoop(cn *connection) {
	defer cn.loops.Done()

	for {
		f, err := cn.conn.ReadFrame()
		if err != nil {
			switch {
			case cn.closing.Load() || errors.Is(err, net.ErrClosed):
				c.log.WithError(err).Debug("receive loop stopped")
			case errors.Is(err, io.EOF):
				c.log.Info("server closed the connection")
			default:
				c.log.WithError(err).Error("receive failed")
			}
			c.disconnect(cn)
			return
		}

		c.framesRecv.Add(1)
		c.bytesRecv.Add(uint64(len(f)))

		c.log.WithField("first_bytes", []byte(f[:min(len(f), previewBytes)])).
			Infof("Received %d bytes", len(f))

		c.playback.Write(f)
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(f)
		}
	}
}

func (c *Client) sendLoop(cn *connection) {
	defer cn.loops.Done()

	for {
		for {
			// writing is raised before the pop so Flush never sees an
			// empty queue while a frame is between Next and write.
			cn.writing.Store(true)
			f, ok := cn.out.Next()
			if !ok {
				cn.writing.Store(false)
				break
			}
			err := c.write(cn, f)
			if err != nil {
				if !cn.closing.Load() {
					c.log.WithError(err).Error("send failed")
				}
				c.disconnect(cn)
				return
			}
		}

		select {
		case <-cn.out.Wake():
		case <-cn.done:
			return
		}
	}
}

func (c *Client) write(cn *connection, f transport.Frame) error {
	if c.opts.WriteTimeout > 0 {
		if err := cn.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := cn.conn.WriteFrame(f); err != nil {
		return err
	}
	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(len(f)))
	return nil
}

// disconnect tears down cn once. Capture keeps its own state; frames captured
// while disconnected are discarded.
func (c *Client) disconnect(cn *connection) {
	c.mu.Lock()
	if c.cur.Load() == cn {
		c.cur.Store(nil)
	}
	first := cn.closing.CompareAndSwap(false, true)
	c.mu.Unlock()

	if !first {
		return
	}

	close(cn.done)
	if err := cn.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.WithError(err).Debug("close failed")
	}
	c.dropped.Add(cn.out.Dropped())
	if n := cn.out.Close(); n > 0 {
		c.log.WithField("frames", n).Debug("unsent frames discarded")
	}
	c.log.Info("disconnected")
}
