package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/transport"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Addr      string
	ReusePort bool

	// Codec splits each accepted stream into frames; nil selects raw framing.
	Codec transport.Codec

	// MaxFrameSize is the read buffer size per connection.
	MaxFrameSize int

	// Session is the template for every accepted session.
	Session SessionOptions

	Logger *logrus.Entry
}

// Listener accepts stream connections and attaches each one to a hub.
type Listener struct {
	ln   net.Listener
	hub  *Hub
	opts ListenerOptions
	log  *logrus.Entry
}

// Listen binds the listening socket. A bind failure is returned to the caller.
func Listen(ctx context.Context, hub *Hub, opts ListenerOptions) (*Listener, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = transport.DefaultMaxFrameSize
	}
	if opts.Codec == nil {
		opts.Codec = transport.RawCodec{}
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = log
	}

	ln, err := transport.Listen(ctx, opts.Addr, transport.ListenOptions{ReusePort: opts.ReusePort})
	if err != nil {
		return nil, err
	}

	return &Listener{
		ln:   ln,
		hub:  hub,
		opts: opts,
		log:  log.WithField("component", "listener"),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Accept errors are logged and retried with backoff; Serve returns nil on a
// deliberate stop.
func (l *Listener) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-stop:
		}
	}()

	l.log.WithFields(logrus.Fields{
		"addr":    l.ln.Addr().String(),
		"framing": l.opts.Codec.Name(),
	}).Info("accepting connections")

	var delay time.Duration
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			l.log.WithError(err).WithField("retry_in", delay).Warn("accept failed")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		delay = 0
		l.handle(c)
	}
}

// Close stops accepting. Sessions already attached are not affected.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (l *Listener) handle(c net.Conn) {
	l.log.WithField("remote", c.RemoteAddr().String()).Debug("new connection")

	conn := transport.NewStreamConn(c, l.opts.Codec, l.opts.MaxFrameSize)
	if _, err := Attach(l.hub, conn, l.opts.Session); err != nil {
		l.log.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("rejected connection")
	}
}

// Attach creates a session for conn, joins it to hub and starts it.
// On failure conn is closed.
func Attach(hub *Hub, conn transport.Conn, opts SessionOptions) (*Session, error) {
	s := NewSession(conn, hub, opts)
	if err := hub.Join(s); err != nil {
		conn.Close()
		return nil, err
	}
	s.Start()
	return s, nil
}
