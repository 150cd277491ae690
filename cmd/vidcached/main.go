// Package main is the entry point for the vidcached daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dailyyoga/vidcache/cmd/vidcached/commands"
	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.New().Execute(ctx); err != nil {
		// goes to stderr when the configured logger was never built
		logger.Error("vidcached failed", zap.Error(err))
		_ = logger.Sync()
		return 1
	}
	return 0
}
