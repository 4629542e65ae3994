package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/worth-network/worthx/app/indexer"
	"github.com/worth-network/worthx/pkg/config"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Mode == config.ModeServer {
		fmt.Fprintln(os.Stderr, indexer.ErrServerMode)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := indexer.Initialize(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch cfg.Mode {
	case config.ModeStatus:
		err = app.PrintStatus(ctx, os.Stdout)
	case config.ModeAudit:
		err = app.RunAudit(ctx, os.Stdout)
	default:
		err = app.RunSync(ctx)
	}
	logger := app.Logger
	app.Stop()
	if err != nil {
		logger.Fatal("indexer stopped", zap.String("mode", cfg.Mode), zap.Error(err))
	}
}
