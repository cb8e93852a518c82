package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/repository"
)

// maxHistoryLimit caps the limit query parameter.
const maxHistoryLimit = 1000

// HistoryStore is the view of the history repository the handlers need.
type HistoryStore interface {
	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
	List(ctx context.Context, opts repository.ListOptions) ([]*model.SessionRecord, error)
}

// HistoryHandler serves the persisted session history.
type HistoryHandler struct {
	store HistoryStore
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HistoryResponse represents a session record in API responses.
type HistoryResponse struct {
	ID            string `json:"id"`
	RemoteAddr    string `json:"remoteAddr"`
	Transport     string `json:"transport"`
	JoinedAt      string `json:"joinedAt"`
	ClosedAt      string `json:"closedAt,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Duration      string `json:"duration"`
	FramesIn      uint64 `json:"framesIn"`
	FramesOut     uint64 `json:"framesOut"`
	BytesIn       uint64 `json:"bytesIn"`
	BytesOut      uint64 `json:"bytesOut"`
	FramesDropped uint64 `json:"framesDropped"`
}

func toHistoryResponse(r *model.SessionRecord) HistoryResponse {
	resp := HistoryResponse{
		ID:            r.ID,
		RemoteAddr:    r.RemoteAddr,
		Transport:     string(r.Transport),
		JoinedAt:      r.JoinedAt.Format(time.RFC3339),
		Reason:        string(r.Reason),
		Detail:        r.Detail,
		Duration:      formatDuration(r.Duration()),
		FramesIn:      r.FramesIn,
		FramesOut:     r.FramesOut,
		BytesIn:       r.BytesIn,
		BytesOut:      r.BytesOut,
		FramesDropped: r.FramesDropped,
	}
	if r.ClosedAt != nil {
		resp.ClosedAt = r.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// List handles GET /api/history - lists recorded sessions, newest first.
// Query parameters: limit (1..1000) and open=true for sessions still connected.
func (h *HistoryHandler) List(c *gin.Context) {
	opts := repository.ListOptions{}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxHistoryLimit {
			sendError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		opts.Limit = limit
	}
	if v := c.Query("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			sendError(c, http.StatusBadRequest, "INVALID_FILTER", "open must be true or false")
			return
		}
		opts.OpenOnly = open
	}

	records, err := h.store.List(c.Request.Context(), opts)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list history: "+err.Error())
		return
	}

	items := make([]HistoryResponse, 0, len(records))
	for _, r := range records {
		items = append(items, toHistoryResponse(r))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": items,
		"total":    len(items),
	})
}

// Get handles GET /api/history/:id - returns one recorded session.
func (h *HistoryHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	rec, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toHistoryResponse(rec))
}

// RegisterRoutes registers the history handler routes on a Gin router group.
func (h *HistoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/history", h.List)
	rg.GET("/history/:id", h.Get)
}
