package main

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.sakib.dev/ftserve/banner"
	"go.sakib.dev/ftserve/config"
	"go.sakib.dev/ftserve/logger"
	"go.sakib.dev/ftserve/server"
	"go.sakib.dev/ftserve/storage"
	"go.sakib.dev/ftserve/transport"
)

const shutdownTimeout = 5 * time.Second

func main() {
	src, err := config.NewSource("ftserve", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg, err := src.Config()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Setup(cfg.LogLevel)
	src.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			slog.Warn("Ignoring config change", "error", err)
			return
		}
		logger.SetLevel(cfg.LogLevel)
	})

	store, err := storage.NewOS(cfg.Dir, cfg.Sandbox)
	if err != nil {
		log.Fatalf("Failed to open directory: %v", err)
	}

	eventCh := make(chan server.ServerEvent, 10)
	srvr, err := server.NewServer(store,
		server.WithDialer(transport.TCPDialer{Timeout: cfg.DialTimeout}),
		server.WithTimeouts(cfg.ReadTimeout, cfg.DialTimeout, cfg.WriteTimeout),
		server.WithMaxSessions(cfg.MaxSessions),
		server.WithEvents(eventCh),
	)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	var tally server.Tally
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range eventCh {
			tally.Record(ev)
		}
	}()

	if err := banner.Print(os.Stdout, cfg.Port, cfg.QR); err != nil {
		slog.Warn("Failed to print banner", "error", err)
	}

	served := make(chan error, 1)
	go func() {
		served <- srvr.ListenAndServe(cfg.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String(), "dir", store.Dir())
	case err := <-served:
		log.Fatalf("Failed to serve: %v", err)
	}

	took := srvr.Shutdown(shutdownTimeout)
	// Shutdown closes eventCh
	<-drained
	slog.Info("Server closed", "took", took, "sessions", tally.String())
}
