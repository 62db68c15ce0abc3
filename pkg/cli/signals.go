package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals are the signals treated as a request to stop.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SetupSignalHandler returns a context cancelled on the first shutdown
// signal.
func SetupSignalHandler() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), shutdownSignals...)
	return ctx
}

// WaitForShutdown returns a channel delivering shutdown signals, for
// callers that want to report which signal arrived before stopping.
func WaitForShutdown() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	return ch
}
