package model

import "errors"

var (
	// ErrHubClosed is returned when a session tries to join a hub that is shutting down.
	ErrHubClosed = errors.New("hub closed")

	// ErrSessionClosed is returned when a frame is delivered to a session that is leaving.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound is returned when no active session has the requested ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDisconnected is the cause recorded for a session removed by an operator.
	ErrDisconnected = errors.New("disconnected by operator")

	// ErrQueueFull is returned when a capped outbound queue overflows under the disconnect policy.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrFrameTooLarge is returned when a length-prefixed frame exceeds the read buffer.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrNotConnected is returned by client operations that need a live connection.
	ErrNotConnected = errors.New("not connected to server")

	// ErrAlreadyConnected is returned when connecting a client that already has a connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrAlreadyCapturing is returned when capture is started twice.
	ErrAlreadyCapturing = errors.New("capture is already running")

	// ErrNotCapturing is returned when stopping a capture that is not running.
	ErrNotCapturing = errors.New("capture is not running")
)
