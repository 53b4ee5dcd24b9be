package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/changeuikim/vercel-kayce/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		code := cli.WriteError(os.Stderr, err)
		stop()
		os.Exit(code)
	}
}
