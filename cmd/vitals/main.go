package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jordangarrison/vitals/internal/cli"
	"github.com/jordangarrison/vitals/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(config.Load(), cli.Connect, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
