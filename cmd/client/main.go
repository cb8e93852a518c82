package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/framerelay/relay/internal/capture"
	"github.com/framerelay/relay/internal/client"
	"github.com/framerelay/relay/internal/config"
	"github.com/framerelay/relay/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	target := flag.String("target", "", "relay address for stdin mode, host:port or ws:// URL")
	source := flag.String("source", "", "capture source: tone or stdin")
	framing := flag.String("framing", "", "frame codec: raw or length-prefixed")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *target != "" {
		cfg.Client.Target = *target
	}
	if *source != "" {
		cfg.Client.Source = *source
	}
	if *framing != "" {
		cfg.Relay.Framing = *framing
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid flags")
	}

	// Logs go to stderr so they do not interleave with the menu.
	base, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up logging")
	}
	log := logrus.NewEntry(base)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.ClientOptions(log)
	if err != nil {
		log.WithError(err).Fatal("invalid client options")
	}

	if cfg.Client.Source == "stdin" {
		err = runChat(ctx, cfg, opts, log)
	} else {
		err = runMenu(ctx, cfg, opts)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("client stopped")
		os.Exit(1)
	}
}

// runMenu drives a tone-capturing client from the interactive menu.
func runMenu(ctx context.Context, cfg *config.Config, opts client.Options) error {
	src := capture.NewToneSource(capture.ToneOptions{Frequency: cfg.Client.ToneFrequency})
	c := client.New(src, opts)

	m := &client.Menu{
		Client:      c,
		In:          os.Stdin,
		Out:         os.Stdout,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
	return m.Run(ctx)
}

// runChat sends every stdin line to the relay and prints every received frame.
func runChat(ctx context.Context, cfg *config.Config, opts client.Options, log *logrus.Entry) error {
	src := capture.NewLineSource(os.Stdin, log)
	opts.OnFrame = func(f []byte) {
		fmt.Fprintf(os.Stdout, "%s\n", f)
	}
	c := client.New(src, opts)
	defer c.Close()

	if err := c.Connect(ctx, cfg.Client.Target); err != nil {
		return err
	}
	if err := c.StartCapture(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-src.EOF():
		flushCtx, cancel := context.WithTimeout(ctx, cfg.Relay.WriteTimeout)
		defer cancel()
		if err := c.Flush(flushCtx); err != nil {
			log.WithError(err).Warn("unsent lines discarded")
		}
	case <-c.Done():
	}
	return nil
}
