// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huozhong-in/knowledge-focus/internal/logger"
)

const parentPollInterval = 1 * time.Second

// WatchParent polls the parent process's liveness every second and
// cancels cancel when it's gone, so the process exits if the desktop
// shell that spawned it disappears without a clean shutdown signal.
// Grounded on cmd/watchdog's polling-loop style (generalized here from
// log-tailing to a liveness check via signal 0, the portable "does this
// pid exist" probe).
func WatchParent(ctx context.Context, ppid int, cancel context.CancelFunc) {
	ticker := time.NewTicker(parentPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(ppid) {
				logger.Printf("scheduler: parent process %d is gone, shutting down", ppid)
				cancel()
				return
			}
		}
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs no actual signal delivery; a nil error means
	// the process exists and is signalable.
	return proc.Signal(syscall.Signal(0)) == nil
}

// WaitForShutdownSignal blocks until SIGINT/SIGTERM, then cancels ctx
// via cancel for the ordered-shutdown sequence (loops finish in-flight
// work, joins bounded by Scheduler.Run's own shutdownBudget).
func WaitForShutdownSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("scheduler: received signal %v, shutting down", sig)
	cancel()
}
