package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "utils")

// HandleErrors blocks until a fatal error, a termination signal or the end
// of ctx, cancels ctx and returns the process exit code.
func HandleErrors(ctx context.Context, cancel context.CancelFunc, errors <-chan error) int {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-errors:
		log.Errorf("Fatal error: %v", err)
		cancel()
		return 1
	case sig := <-signals:
		log.Infof("Received %s, shutting down", sig)
		cancel()
		return 0
	case <-ctx.Done():
		log.Info("Shutdown completed")
		return 0
	}
}
