// Package config loads the relay server and client configuration.
//
// Configuration comes from an optional YAML file with ${VAR} expansion,
// then defaults, then a small set of environment overrides:
//
//	PORT             relay listen port (keeps the configured host)
//	RELAY_ADDR       relay listen address
//	RELAY_HTTP_ADDR  ops HTTP listen address
//	RELAY_HISTORY_DB session history database path
//	LOG_LEVEL        log level
package config

import "time"

// Config is the root configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	HTTP    HTTPConfig    `yaml:"http"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
	Client  ClientConfig  `yaml:"client"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	Addr            string        `yaml:"addr"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	MaxQueueFrames  int           `yaml:"max_queue_frames"`
	Overflow        string        `yaml:"overflow"`
	Echo            *bool         `yaml:"echo"`
	Framing         string        `yaml:"framing"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReusePort       bool          `yaml:"reuse_port"`
}

// EchoEnabled reports whether frames are delivered back to their origin.
func (r RelayConfig) EchoEnabled() bool {
	return r.Echo == nil || *r.Echo
}

// HTTPConfig configures the ops HTTP server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig configures the SQLite session history. An empty Path
// disables it.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	QueueSize int           `yaml:"queue_size"`
	Retention time.Duration `yaml:"retention"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig configures the relay client.
type ClientConfig struct {
	Target             string  `yaml:"target"`
	Source             string  `yaml:"source"`
	ToneFrequency      float64 `yaml:"tone_frequency"`
	PlaybackBufferSize int     `yaml:"playback_buffer_size"`
	MaxQueueFrames     int     `yaml:"max_queue_frames"`
}
