package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/metrics"
	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/server"
	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "axivid-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	hub := signaling.NewHub(
		signaling.WithLogger(logger),
		signaling.WithMetrics(m),
		signaling.WithIdleTimeout(cfg.RoomIdleTimeout),
	)
	go hub.RunJanitor(ctx, cfg.SweepInterval)

	relay := signaling.NewRelay(hub, signaling.RelayConfig{
		MaxMessageSize: cfg.MaxMessageBytes,
		SendQueueSize:  cfg.SendQueueSize,
	}, logger, m)

	srv := server.New(hub, relay,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithOriginCheck(cfg.OriginAllowed),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting signaling server", "addr", cfg.ListenAddr, "room_idle_timeout", cfg.RoomIdleTimeout)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "stats", hub.Stats())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return httpServer.Close()
	}
	return nil
}
