package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// startHTTPServer serves router until ctx is cancelled or the listener fails,
// then drains in-flight requests within the configured shutdown timeout.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("server failed", slog.String("error", err.Error()))
			runErr = err
		}
	}

	timeout := time.Duration(app.config.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		if runErr == nil {
			runErr = fmt.Errorf("server shutdown failed: %w", err)
		}
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return runErr
}
