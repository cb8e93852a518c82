package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/framerelay/relay/api/handlers"
	"github.com/framerelay/relay/internal/config"
	"github.com/framerelay/relay/internal/db"
	"github.com/framerelay/relay/internal/history"
	"github.com/framerelay/relay/internal/logger"
	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	base, err := logger.New(cfg.Log, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up logging")
	}
	log := logrus.NewEntry(base)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("relay stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.ServerOptions(log)
	if err != nil {
		return err
	}

	var historyHandler *handlers.HistoryHandler
	if cfg.History.Path != "" {
		repo, closeHistory, err := openHistory(ctx, cfg.History, log)
		if err != nil {
			return err
		}
		recorder := history.NewRecorder(repo, cfg.History.QueueSize, log)
		// Runs after the hub has exited so every close is stored.
		defer closeHistory()
		defer recorder.Close()

		opts.Hub.Observer = recorder
		historyHandler = handlers.NewHistoryHandler(repo)
	}

	// A bind failure ends the process here.
	srv, err := relay.NewServer(ctx, opts)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"addr":       srv.Addr().String(),
		"framing":    cfg.Relay.Framing,
		"echo":       cfg.Relay.EchoEnabled(),
		"max_queue":  cfg.Relay.MaxQueueFrames,
		"overflow":   cfg.Relay.Overflow,
		"reuse_port": cfg.Relay.ReusePort,
	}).Info("relay started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if cfg.HTTP.Addr != "" {
		router := handlers.NewRouter(
			handlers.NewSessionHandler(srv.Hub()),
			handlers.NewWebSocketHandler(srv, cfg.Relay.ReadBufferSize, log),
			historyHandler,
			log,
		)
		hs := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.WithField("addr", cfg.HTTP.Addr).Info("ops http listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down relay")
		return nil
	})

	return g.Wait()
}

// openHistory opens the session history database, closes the records a
// previous run left open and prunes expired ones.
func openHistory(ctx context.Context, cfg config.HistoryConfig, log *logrus.Entry) (*repository.HistoryRepository, func(), error) {
	conn, err := db.Open(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewHistoryRepository(conn)

	now := time.Now()
	if n, err := repo.CloseAbandoned(ctx, now); err != nil {
		conn.Close()
		return nil, nil, err
	} else if n > 0 {
		log.WithField("sessions", n).Warn("closed sessions left open by a previous run")
	}

	if cfg.Retention > 0 {
		n, err := repo.Prune(ctx, now.Add(-cfg.Retention))
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		log.WithField("sessions", n).Debug("pruned session history")
	}

	log.WithField("path", cfg.Path).Info("session history enabled")
	return repo, func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Warn("failed to close history database")
		}
	}, nil
}
