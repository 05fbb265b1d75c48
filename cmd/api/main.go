package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaidashi/chickiemart-api/internal/api"
	"github.com/vaidashi/chickiemart-api/internal/config"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel, cfg.Env)
	defer logger.Sync(l)

	l.Info("Starting ChickieMart API...", "env", cfg.Env)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	server, err := api.NewServer(startupCtx, cfg, l)
	cancelStartup()

	if err != nil {
		l.Error("Failed to initialize server", "error", err)
		logger.Sync(l)
		os.Exit(1)
	}

	errCh := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		l.Info("Shutting down server...", "signal", sig.String())
	case err := <-errCh:
		l.Error("Server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	} else {
		l.Info("Server exiting")
	}
}
