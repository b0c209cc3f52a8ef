// Package main implements the whenthere JSON API: the tracked locations, the
// pinned hour and city search for a browser or menu-bar front end.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/codeGROOVE-dev/whenthere/pkg/config"
)

var (
	port        = pflag.String("port", "", "Port for web server (or set PORT)")
	verbose     = pflag.Bool("verbose", false, "Enable verbose logging")
	showVersion = pflag.Bool("version", false, "Show version")
)

func main() {
	pflag.Parse()

	if *showVersion {
		fmt.Println("whenthere server v0.1.0")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}

	level := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("failed to close", "error", err)
		}
	}()
	rt.Store.Start(ctx)

	s := &server{
		store:      rt.Store,
		search:     rt.Lookup,
		logger:     logger,
		limiter:    newRateLimiter(30, time.Minute),
		shareBase:  cfg.ShareBaseURL,
		production: os.Getenv("PRODUCTION") == "true",
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "state", cfg.StateBackend, "restored", rt.Store.Restored())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
