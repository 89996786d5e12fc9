package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aisentinel/session-service/internal/cli"
	"github.com/aisentinel/session-service/pkg/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			os.Exit(130)
		}
		if errors.Is(err, session.ErrDemoMode) {
			fmt.Fprintln(os.Stderr, "Demo mode: changes are disabled")
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, session.ErrUnauthorized) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
