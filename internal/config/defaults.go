package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRelayAddr          = ":8080"
	DefaultReadBufferSize     = 64 * 1024
	DefaultOverflow           = "disconnect"
	DefaultFraming            = "raw"
	DefaultWriteTimeout       = 10 * time.Second
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultClientTarget       = "localhost:8080"
	DefaultClientSource       = "tone"
	DefaultToneFrequency      = 440.0
	DefaultPlaybackBufferSize = 44100 * 4
	DefaultClientQueueFrames  = 256
	DefaultHistoryQueueSize   = 1024
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Relay defaults
	if c.Relay.Addr == "" {
		c.Relay.Addr = DefaultRelayAddr
	}
	if c.Relay.ReadBufferSize == 0 {
		c.Relay.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Relay.Overflow == "" {
		c.Relay.Overflow = DefaultOverflow
	}
	if c.Relay.Echo == nil {
		echo := true
		c.Relay.Echo = &echo
	}
	if c.Relay.Framing == "" {
		c.Relay.Framing = DefaultFraming
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = DefaultWriteTimeout
	}
	if c.Relay.ShutdownTimeout == 0 {
		c.Relay.ShutdownTimeout = DefaultShutdownTimeout
	}

	// History defaults
	if c.History.QueueSize == 0 {
		c.History.QueueSize = DefaultHistoryQueueSize
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Client defaults
	if c.Client.Target == "" {
		c.Client.Target = DefaultClientTarget
	}
	if c.Client.Source == "" {
		c.Client.Source = DefaultClientSource
	}
	if c.Client.ToneFrequency == 0 {
		c.Client.ToneFrequency = DefaultToneFrequency
	}
	if c.Client.PlaybackBufferSize == 0 {
		c.Client.PlaybackBufferSize = DefaultPlaybackBufferSize
	}
	if c.Client.MaxQueueFrames == 0 {
		c.Client.MaxQueueFrames = DefaultClientQueueFrames
	}
}
