// Package capture provides frame producers for the relay client.
//
// A Source runs on its own goroutine and hands every captured buffer to a
// Sink. Sinks must not block; the client's sink queues the frame for its
// writer and returns.
package capture

// Sink receives captured frames. The slice is owned by the sink after the call.
type Sink func(frame []byte)

// Source produces frames until stopped.
type Source interface {
	// Name identifies the source in logs and configuration.
	Name() string

	// Start begins capturing into sink. It returns model.ErrAlreadyCapturing
	// when the source is already running.
	Start(sink Sink) error

	// Stop ends capturing. It returns model.ErrNotCapturing when the source
	// is not running. No frames are passed to the sink after Stop returns.
	Stop() error
}
