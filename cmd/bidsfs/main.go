package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bidsfs/internal/cli"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.Run(ctx, os.Args[1:], version)
	stop()
	os.Exit(code)
}
