package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tagboard/tagboard/cmd/tagboard/cli"
	"github.com/tagboard/tagboard/internal/app"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		services.Close(closeCtx)
	}()

	runner := &cli.Runner{
		Dispatcher: services.Dispatcher,
		Sessions:   services.Sessions,
		Auth:       services.Auth,
		Posts:      services.Posts,
		In:         os.Stdin,
		Out:        os.Stdout,
	}
	return runner.Run(ctx, os.Args[1:])
}
