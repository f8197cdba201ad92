package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tunesync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := runner.app().Run(ctx, os.Args); err != nil {
		logger.Error(shared.SafeMessage(err), "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error category to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrConfiguration):
		return 2
	case errors.Is(err, shared.ErrNotFound):
		return 3
	case errors.Is(err, shared.ErrAlreadyExists):
		return 4
	default:
		return 1
	}
}
