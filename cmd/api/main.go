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

	"clawderous/internal/admin"
	"clawderous/internal/api"
	"clawderous/internal/app"
	"clawderous/internal/config"
	"clawderous/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.Options{
		Limiter:  a.Store,
		Ready:    a.Store,
		Commands: a.Commands.Names,
		Logger:   logger.Named("api"),
	}
	adminHandler, err := admin.NewAdminHandler(cfg, a.Store, logger.Named("admin"))
	switch {
	case errors.Is(err, admin.ErrNoPassword):
		logger.Warn("ADMIN_PASSWORD not set, admin API disabled")
	case err != nil:
		return err
	default:
		opts.Admin = adminHandler.Routes
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(cfg, a.Provider, a.Processor, opts).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.String("provider", a.Provider.Name()),
			zap.Strings("commands", a.Commands.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
