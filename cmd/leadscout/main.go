package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/karstyne/leadscout/cmd"
	"github.com/karstyne/leadscout/internal/observability"
)

func main() {
	// Shut down gracefully on SIGINT/SIGTERM: the orchestrator stops taking
	// new work and in-flight fetches finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
