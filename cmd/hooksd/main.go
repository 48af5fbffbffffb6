// Command hooksd receives marketplace extension webhooks over HTTP, verifies
// them and persists extension instance state.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-marketplace-hooks/core"
)

func main() {
	cfg, err := LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hooksd stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger core.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err.Error())
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting webhook server", "port", cfg.Port, "path", cfg.WebhookPath, "storage", cfg.storageDriver())
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
