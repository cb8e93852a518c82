// Package handlers provides the relay's ops HTTP handlers.
package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/framerelay/relay/internal/model"
)

// Registry is the view of the hub the handlers need.
type Registry interface {
	Sessions() []model.SessionInfo
	Stats() model.HubStats
	Count() int
	Disconnect(id string) error
}

// SessionHandler handles HTTP requests for session inspection.
type SessionHandler struct {
	registry Registry
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry Registry) *SessionHandler {
	return &SessionHandler{
		registry: registry,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID            string `json:"id"`
	RemoteAddr    string `json:"remoteAddr"`
	Transport     string `json:"transport"`
	State         string `json:"state"`
	QueuedFrames  int    `json:"queuedFrames"`
	FramesIn      uint64 `json:"framesIn"`
	FramesOut     uint64 `json:"framesOut"`
	BytesIn       uint64 `json:"bytesIn"`
	BytesOut      uint64 `json:"bytesOut"`
	FramesDropped uint64 `json:"framesDropped"`
	Duration      string `json:"duration"`
	JoinedAt      string `json:"joinedAt"`
}

// StatsResponse represents the hub counters in API responses.
type StatsResponse struct {
	ActiveSessions   int    `json:"activeSessions"`
	DrainingSessions int    `json:"drainingSessions"`
	TotalSessions    uint64 `json:"totalSessions"`
	FramesReceived   uint64 `json:"framesReceived"`
	FramesFannedOut  uint64 `json:"framesFannedOut"`
	FramesRejected   uint64 `json:"framesRejected"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toSessionResponse converts a model.SessionInfo to SessionResponse.
func toSessionResponse(s model.SessionInfo) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		RemoteAddr:    s.RemoteAddr,
		Transport:     string(s.Transport),
		State:         s.State,
		QueuedFrames:  s.QueuedFrames,
		FramesIn:      s.FramesIn,
		FramesOut:     s.FramesOut,
		BytesIn:       s.BytesIn,
		BytesOut:      s.BytesOut,
		FramesDropped: s.FramesDropped,
		Duration:      formatDuration(s.Duration()),
		JoinedAt:      s.JoinedAt.Format(time.RFC3339),
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /api/sessions - lists active sessions, oldest first.
func (h *SessionHandler) List(c *gin.Context) {
	infos := h.registry.Sessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].JoinedAt.Before(infos[j].JoinedAt)
	})

	sessions := make([]SessionResponse, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, toSessionResponse(info))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Get handles GET /api/sessions/:id - returns one active session.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")
	for _, info := range h.registry.Sessions() {
		if info.ID == sessionID {
			c.JSON(http.StatusOK, toSessionResponse(info))
			return
		}
	}
	sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
}

// Delete handles DELETE /api/sessions/:id - disconnects a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.registry.Disconnect(sessionID); err != nil {
		switch {
		case errors.Is(err, model.ErrSessionNotFound):
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		case errors.Is(err, model.ErrHubClosed):
			sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Relay is shutting down")
		default:
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to disconnect session: "+err.Error())
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/stats - returns the hub counters.
func (h *SessionHandler) Stats(c *gin.Context) {
	st := h.registry.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		ActiveSessions:   st.ActiveSessions,
		DrainingSessions: st.DrainingSessions,
		TotalSessions:    st.TotalSessions,
		FramesReceived:   st.FramesReceived,
		FramesFannedOut:  st.FramesFannedOut,
		FramesRejected:   st.FramesRejected,
	})
}

// Health handles GET /health.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.registry.Count(),
	})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
	rg.DELETE("/sessions/:id", h.Delete)
	rg.GET("/stats", h.Stats)
}
