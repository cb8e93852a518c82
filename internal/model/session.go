// Package model holds the types shared between the relay core, the ops API and the client.
package model

import (
	"time"
)

// SessionState is the lifecycle state of a relay session as observed by the hub.
type SessionState int32

const (
	SessionStatePending SessionState = iota
	SessionStateActive
	SessionStateLeaving
	SessionStateGone
)

// String returns the lowercase name of the state.
func (s SessionState) String() string {
	switch s {
	case SessionStatePending:
		return "pending"
	case SessionStateActive:
		return "active"
	case SessionStateLeaving:
		return "leaving"
	case SessionStateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// TransportKind identifies how a session is connected.
type TransportKind string

const (
	TransportTCP       TransportKind = "tcp"
	TransportWebSocket TransportKind = "websocket"
)

// SessionInfo is a point-in-time snapshot of a relay session.
type SessionInfo struct {
	ID            string        `json:"id"`
	RemoteAddr    string        `json:"remoteAddr"`
	Transport     TransportKind `json:"transport"`
	State         string        `json:"state"`
	QueuedFrames  int           `json:"queuedFrames"`
	FramesIn      uint64        `json:"framesIn"`
	FramesOut     uint64        `json:"framesOut"`
	BytesIn       uint64        `json:"bytesIn"`
	BytesOut      uint64        `json:"bytesOut"`
	FramesDropped uint64        `json:"framesDropped"`
	JoinedAt      time.Time     `json:"joinedAt"`
}

// Duration returns how long the session has been joined.
func (s *SessionInfo) Duration() time.Duration {
	if s.JoinedAt.IsZero() {
		return 0
	}
	return time.Since(s.JoinedAt)
}

// HubStats aggregates counters kept by the hub coordinator.
type HubStats struct {
	ActiveSessions   int    `json:"activeSessions"`
	DrainingSessions int    `json:"drainingSessions"`
	TotalSessions    uint64 `json:"totalSessions"`
	FramesReceived   uint64 `json:"framesReceived"`
	FramesFannedOut  uint64 `json:"framesFannedOut"`
	FramesRejected   uint64 `json:"framesRejected"`
}

// CloseReason records why a session ended.
type CloseReason string

const (
	CloseReasonLeft         CloseReason = "left"
	CloseReasonRemoved      CloseReason = "removed"
	CloseReasonDisconnected CloseReason = "disconnected"
	CloseReasonShutdown     CloseReason = "shutdown"
)

// SessionRecord is the persisted history of one session. ClosedAt is nil
// while the session is still connected.
type SessionRecord struct {
	ID            string        `json:"id"`
	RemoteAddr    string        `json:"remoteAddr"`
	Transport     TransportKind `json:"transport"`
	JoinedAt      time.Time     `json:"joinedAt"`
	ClosedAt      *time.Time    `json:"closedAt,omitempty"`
	Reason        CloseReason   `json:"reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	FramesIn      uint64        `json:"framesIn"`
	FramesOut     uint64        `json:"framesOut"`
	BytesIn       uint64        `json:"bytesIn"`
	BytesOut      uint64        `json:"bytesOut"`
	FramesDropped uint64        `json:"framesDropped"`
}

// IsOpen returns true if the session has not been closed yet.
func (r *SessionRecord) IsOpen() bool {
	return r.ClosedAt == nil
}

// Duration returns how long the session lasted, or has lasted so far.
func (r *SessionRecord) Duration() time.Duration {
	if r.ClosedAt == nil {
		return time.Since(r.JoinedAt)
	}
	return r.ClosedAt.Sub(r.JoinedAt)
}
