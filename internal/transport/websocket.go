package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framerelay/relay/internal/model"
)

// Time allowed to send the close message when a WebSocket connection is closed.
const closeGracePeriod = time.Second

// WSConn is a Conn over a WebSocket connection. Each binary or text message
// is one frame; outgoing frames are sent as binary messages.
type WSConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps c and limits incoming messages to maxFrameSize bytes.
func NewWSConn(c *websocket.Conn, maxFrameSize int) *WSConn {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	c.SetReadLimit(int64(maxFrameSize))
	return &WSConn{conn: c}
}

func (w *WSConn) ReadFrame() (Frame, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, fmt.Errorf("%w: %v", model.ErrFrameTooLarge, err)
			}
			return nil, err
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (w *WSConn) WriteFrame(f Frame) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, f)
}

func (w *WSConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *WSConn) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

// Close sends a best-effort close message and closes the connection.
func (w *WSConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return w.conn.Close()
}

func (w *WSConn) RemoteAddr() string {
	if addr := w.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (w *WSConn) Kind() model.TransportKind {
	return model.TransportWebSocket
}

// NewUpgrader returns a WebSocket upgrader sized for the given frame size.
// Origins are not checked: the relay has no browser-facing authentication.
func NewUpgrader(maxFrameSize int) *websocket.Upgrader {
	bufSize := 4096
	if maxFrameSize > 0 && maxFrameSize < bufSize {
		bufSize = maxFrameSize
	}
	return &websocket.Upgrader{
		ReadBufferSize:  bufSize,
		WriteBufferSize: bufSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string, maxFrameSize int) (*WSConn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSConn(c, maxFrameSize), nil
}
