package relay

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/transport"
)

// DefaultShutdownTimeout bounds the drain of queued writes on shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	Listener ListenerOptions
	Hub      HubOptions

	ShutdownTimeout time.Duration

	Logger *logrus.Entry
}

// Server ties a Listener to a Hub and owns their shutdown.
type Server struct {
	hub  *Hub
	ln   *Listener
	opts ServerOptions
	log  *logrus.Entry
}

// NewServer binds the listener and starts the hub.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Hub.Logger == nil {
		opts.Hub.Logger = log
	}
	if opts.Listener.Logger == nil {
		opts.Listener.Logger = log
	}
	if opts.Listener.Session.Logger == nil {
		opts.Listener.Session.Logger = log
	}

	hub := NewHub(opts.Hub)
	ln, err := Listen(ctx, hub, opts.Listener)
	if err != nil {
		hub.Shutdown(context.Background())
		return nil, err
	}

	return &Server{
		hub:  hub,
		ln:   ln,
		opts: opts,
		log:  log.WithField("component", "server"),
	}, nil
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Attach adds a connection from another ingress, such as the WebSocket
// endpoint, to the server's hub.
func (s *Server) Attach(conn transport.Conn) (*Session, error) {
	return Attach(s.hub, conn, s.opts.Listener.Session)
}

// Run serves until ctx is cancelled, then shuts down with the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	serveErr := s.ln.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("shutdown incomplete")
	}
	return serveErr
}

// Shutdown stops accepting, stops every session's read loop and waits for
// queued writes to drain until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.ln.Close(); err != nil {
		s.log.WithError(err).Debug("listener close")
	}
	return s.hub.Shutdown(ctx)
}
