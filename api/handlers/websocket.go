package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

// Attacher joins a connection to the relay.
type Attacher interface {
	Attach(conn transport.Conn) (*relay.Session, error)
}

// WebSocketHandler upgrades HTTP requests into relay sessions. Every binary
// or text message is one frame.
type WebSocketHandler struct {
	attacher     Attacher
	upgrader     *websocket.Upgrader
	maxFrameSize int
	log          *logrus.Entry
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(attacher Attacher, maxFrameSize int, log *logrus.Entry) *WebSocketHandler {
	if maxFrameSize <= 0 {
		maxFrameSize = transport.DefaultMaxFrameSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebSocketHandler{
		attacher:     attacher,
		upgrader:     transport.NewUpgrader(maxFrameSize),
		maxFrameSize: maxFrameSize,
		log:          log.WithField("component", "websocket"),
	}
}

// Attach handles GET /ws - joins the caller to the relay over WebSocket.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.WithError(err).Debug("upgrade failed")
		return
	}

	conn := transport.NewWSConn(ws, h.maxFrameSize)
	if _, err := h.attacher.Attach(conn); err != nil {
		h.log.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("rejected connection")
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Attach)
}
