package config

import (
	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/client"
	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

// Codec returns the frame codec selected by relay.framing.
func (c *Config) Codec() (transport.Codec, error) {
	return transport.ParseCodec(c.Relay.Framing, c.Relay.ReadBufferSize)
}

// ServerOptions converts the relay section into relay.ServerOptions.
func (c *Config) ServerOptions(log *logrus.Entry) (relay.ServerOptions, error) {
	codec, err := c.Codec()
	if err != nil {
		return relay.ServerOptions{}, err
	}
	overflow, err := relay.ParseOverflowPolicy(c.Relay.Overflow)
	if err != nil {
		return relay.ServerOptions{}, err
	}

	return relay.ServerOptions{
		Listener: relay.ListenerOptions{
			Addr:         c.Relay.Addr,
			ReusePort:    c.Relay.ReusePort,
			Codec:        codec,
			MaxFrameSize: c.Relay.ReadBufferSize,
			Session: relay.SessionOptions{
				MaxQueueFrames: c.Relay.MaxQueueFrames,
				Overflow:       overflow,
				WriteTimeout:   c.Relay.WriteTimeout,
			},
		},
		Hub:             relay.HubOptions{Echo: c.Relay.EchoEnabled()},
		ShutdownTimeout: c.Relay.ShutdownTimeout,
		Logger:          log,
	}, nil
}

// ClientOptions converts the client section into client.Options.
func (c *Config) ClientOptions(log *logrus.Entry) (client.Options, error) {
	codec, err := c.Codec()
	if err != nil {
		return client.Options{}, err
	}
	return client.Options{
		Codec:              codec,
		MaxFrameSize:       c.Relay.ReadBufferSize,
		MaxQueueFrames:     c.Client.MaxQueueFrames,
		PlaybackBufferSize: c.Client.PlaybackBufferSize,
		WriteTimeout:       c.Relay.WriteTimeout,
		Logger:             log,
	}, nil
}
