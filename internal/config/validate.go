package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Relay.Addr); err != nil {
		return fmt.Errorf("relay.addr %q: %w", c.Relay.Addr, err)
	}
	if c.Relay.ReadBufferSize < 1 {
		return errors.New("relay.read_buffer_size must be >= 1")
	}
	if c.Relay.MaxQueueFrames < 0 {
		return errors.New("relay.max_queue_frames must be >= 0")
	}
	if _, err := relay.ParseOverflowPolicy(c.Relay.Overflow); err != nil {
		return fmt.Errorf("relay.overflow: %w", err)
	}
	if _, err := transport.ParseCodec(c.Relay.Framing, c.Relay.ReadBufferSize); err != nil {
		return fmt.Errorf("relay.framing: %w", err)
	}
	if c.Relay.ShutdownTimeout < 0 {
		return errors.New("relay.shutdown_timeout must be >= 0")
	}

	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("http.addr %q: %w", c.HTTP.Addr, err)
		}
	}

	if c.History.QueueSize < 1 {
		return errors.New("history.queue_size must be >= 1")
	}
	if c.History.Retention < 0 {
		return errors.New("history.retention must be >= 0")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Client.Source != "tone" && c.Client.Source != "stdin" {
		return fmt.Errorf("client.source must be tone or stdin, got %q", c.Client.Source)
	}
	if c.Client.ToneFrequency < 0 {
		return errors.New("client.tone_frequency must be >= 0")
	}
	if c.Client.PlaybackBufferSize < 1 {
		return errors.New("client.playback_buffer_size must be >= 1")
	}

	return nil
}
