package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clawderous/internal/app"
	"clawderous/internal/config"
	"clawderous/internal/imapworker"
	"clawderous/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ingestor:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.IMAPHost == "" {
		return errors.New("IMAP_HOST is not set")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := imapworker.New(cfg, a.Store, a.Processor, logger.Named("imap"))
	err = worker.Run(ctx)
	logger.Info("ingestor stopped")
	return err
}
