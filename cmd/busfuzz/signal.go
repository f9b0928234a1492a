package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// waitForSignal cancels the run on SIGTERM or SIGINT. It returns once ctx is done.
func waitForSignal(ctx context.Context, cancel context.CancelFunc, log *zerolog.Logger) {
	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	select {
	case s := <-signals:
		log.Info().Str("signal", s.String()).Msg("stopping after the current call")
		cancel()
	case <-ctx.Done():
	}
}
