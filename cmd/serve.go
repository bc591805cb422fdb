package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/acura/internal/server"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the tracklist API until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p := cmd.Int("port"); p > 0 {
		r.config.Server.Port = int(p)
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher server.Publisher
	if p, closePublisher, err := r.openPublisher(ctx); err != nil {
		r.logger.Warn("queue unavailable, refills disabled", "err", err)
	} else {
		publisher = p
		defer closePublisher()
	}

	logger := r.logger.WithPrefix("server")
	handler := server.NewTracklistHandler(store, publisher, *r.config, logger)
	srv := server.NewHTTPServer(r.config.Server, server.New(handler, logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.config.Queue.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrShutdownTimeout, err)
	}
	return nil
}
