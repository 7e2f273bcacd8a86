package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/douginoz/iceicedata/internal/app"
	"github.com/douginoz/iceicedata/internal/config"
	"github.com/douginoz/iceicedata/internal/logging"
)

const appName = "iceicedata"

// Overridden with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, logCloser := logging.New(cfg, version, appName)
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg, app.Options{Version: version, Logger: logger, Stdout: os.Stdout})
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("Program terminated by user.")
		slog.Info("shutting down")
		return 0
	case err != nil:
		slog.Error("run failed", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	slog.Info("done")
	return 0
}
