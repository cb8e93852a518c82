package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// ListenOptions configures the listening socket.
type ListenOptions struct {
	// ReusePort sets SO_REUSEADDR and SO_REUSEPORT where the platform supports them.
	ReusePort bool
}

// Listen binds a TCP listener on addr.
func Listen(ctx context.Context, addr string, opts ListenOptions) (net.Listener, error) {
	lc := net.ListenConfig{}
	if opts.ReusePort {
		lc.Control = reuseControl
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Dial connects to target. Targets starting with ws:// or wss:// are dialed
// as WebSocket connections; anything else is treated as a TCP host:port.
func Dial(ctx context.Context, target string, codec Codec, maxFrameSize int) (Conn, error) {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		ws, err := DialWebSocket(ctx, target, maxFrameSize)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewStreamConn(c, codec, maxFrameSize), nil
}
