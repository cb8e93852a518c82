package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/transport"
)

// DefaultWriteTimeout is the time allowed to write one frame to a peer.
const DefaultWriteTimeout = 10 * time.Second

// SessionOptions configures a Session.
type SessionOptions struct {
	// ID overrides the generated session ID.
	ID string

	// MaxQueueFrames caps the outbound queue; zero means unbounded.
	MaxQueueFrames int

	// Overflow is applied when a capped queue is full.
	Overflow OverflowPolicy

	// WriteTimeout bounds a single frame write. Zero selects DefaultWriteTimeout,
	// a negative value disables the deadline.
	WriteTimeout time.Duration

	Logger *logrus.Entry
}

// Session owns one client connection. It runs an independent read loop,
// which reports inbound frames to the hub, and a write loop, which drains
// the session's Outbox in order.
type Session struct {
	id           string
	conn         transport.Conn
	hub          *Hub
	out          *Outbox
	writeTimeout time.Duration
	log          *logrus.Entry

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool
	closing  atomic.Bool

	drain     chan struct{}
	quit      chan struct{}
	done      chan struct{}
	drainOnce sync.Once
	quitOnce  sync.Once
	closeOnce sync.Once
	loops     sync.WaitGroup

	// joinedAt is written by the hub coordinator before the session becomes
	// visible to snapshots and read only by the coordinator.
	joinedAt time.Time

	framesIn  atomic.Uint64
	bytesIn   atomic.Uint64
	framesOut atomic.Uint64
	bytesOut  atomic.Uint64
}

// NewSession creates a pending session bound to conn and hub.
func NewSession(conn transport.Conn, hub *Hub, opts SessionOptions) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}

	log := opts.Logger
	if log == nil && hub != nil {
		log = hub.base
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Session{
		id:           id,
		conn:         conn,
		hub:          hub,
		out:          NewOutbox(opts.MaxQueueFrames, opts.Overflow),
		writeTimeout: writeTimeout,
		log: log.WithFields(logrus.Fields{
			"session":   id,
			"remote":    conn.RemoteAddr(),
			"transport": conn.Kind(),
		}),
		drain: make(chan struct{}),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.state.Store(int32(model.SessionStatePending))
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	return model.SessionState(s.state.Load())
}

// Done is closed once the session's transport is closed and both loops have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start begins the read and write loops. It must be called once, after Join.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.loops.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go s.reap()
}

// Deliver queues f for transmission without blocking.
func (s *Session) Deliver(f transport.Frame) error {
	if s.State() != model.SessionStateActive {
		return model.ErrSessionClosed
	}
	return s.out.Push(f)
}

// Info returns a snapshot of the session.
func (s *Session) Info() model.SessionInfo {
	return model.SessionInfo{
		ID:            s.id,
		RemoteAddr:    s.conn.RemoteAddr(),
		Transport:     s.conn.Kind(),
		State:         s.State().String(),
		QueuedFrames:  s.out.Len(),
		FramesIn:      s.framesIn.Load(),
		FramesOut:     s.framesOut.Load(),
		BytesIn:       s.bytesIn.Load(),
		BytesOut:      s.bytesOut.Load(),
		FramesDropped: s.out.Dropped(),
	}
}

func (s *Session) readLoop() {
	defer s.loops.Done()

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			s.fail("read", err)
			return
		}

		s.framesIn.Add(1)
		s.bytesIn.Add(uint64(len(f)))

		if err := s.hub.Deliver(f, s); err != nil {
			s.fail("deliver", err)
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.loops.Done()

	for {
		for {
			f, ok := s.out.Next()
			if !ok {
				break
			}
			if err := s.write(f); err != nil {
				s.fail("write", err)
				return
			}
		}

		select {
		case <-s.out.Wake():
		case <-s.quit:
			return
		case <-s.drain:
			if s.out.Len() == 0 {
				return
			}
		}
	}
}

func (s *Session) write(f transport.Frame) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	if err := s.conn.WriteFrame(f); err != nil {
		return err
	}
	s.framesOut.Add(1)
	s.bytesOut.Add(uint64(len(f)))
	return nil
}

// fail handles a terminal loop error: it logs according to the error class
// and leaves the hub.
func (s *Session) fail(op string, err error) {
	cancelled := s.closing.Load() || s.stopping.Load() ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, model.ErrHubClosed)

	switch {
	case cancelled:
		s.log.WithError(err).Debugf("%s loop stopped", op)
	case errors.Is(err, io.EOF):
		s.log.Info("peer closed connection")
	default:
		s.log.WithError(err).Warnf("%s failed", op)
	}

	s.leave(s.stopping.Load())
}

// leave reports the session to the hub exactly once. A graceful leave lets
// the write loop flush queued frames; otherwise the transport is closed at once.
func (s *Session) leave(graceful bool) {
	if !s.state.CompareAndSwap(int32(model.SessionStateActive), int32(model.SessionStateLeaving)) {
		// Never joined: nobody else will stop the other loop.
		if s.State() == model.SessionStatePending {
			s.abort()
		}
		return
	}

	s.hub.Leave(s)

	if graceful {
		s.beginDrain()
	} else {
		s.abort()
	}
}

// stop interrupts the read loop for shutdown. The read error that follows is
// treated as a cancellation and triggers a graceful leave.
func (s *Session) stop() {
	s.stopping.Store(true)
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		s.abort()
	}
}

func (s *Session) beginDrain() {
	s.drainOnce.Do(func() { close(s.drain) })
}

// abort stops both loops immediately and abandons queued frames. The
// transport is closed on its own goroutine so that callers such as the hub
// coordinator never wait on a slow peer.
func (s *Session) abort() {
	s.closing.Store(true)
	s.quitOnce.Do(func() { close(s.quit) })
	go s.closeConn()
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.WithError(err).Debug("close failed")
		}
	})
}

// reap destroys the session once both loops have exited.
func (s *Session) reap() {
	s.loops.Wait()

	s.closing.Store(true)
	s.closeConn()
	if n := s.out.Close(); n > 0 {
		s.log.WithField("frames", n).Debug("abandoned queued frames")
	}

	s.hub.release(s)
	close(s.done)
}
