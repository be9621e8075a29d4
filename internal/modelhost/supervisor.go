// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package modelhost optionally supervises a local model-server child
// process: every 10s it probes whether the process's port is free
// (meaning the process isn't actually listening, whether it crashed or
// was never started) and restarts it, with exponential backoff after
// repeated failures and a desktop alert once that backoff kicks in.
// Grounded on internal/drone/heartbeat/monitor.go's Monitor shape
// (time.Ticker, mu sync.RWMutex-guarded status + failure counter,
// beeep.Alert on repeated failure), generalized from "ping a remote
// server over HTTP and report up/down" to "supervise a local child
// process and restart it" — the teacher has no process-supervision
// code to copy directly, but its ticking/counting/backoff skeleton is
// exactly what this component needs.
package modelhost

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/huozhong-in/knowledge-focus/internal/logger"
)

const (
	tickInterval     = 10 * time.Second
	failureWindow    = 60 * time.Second
	backoffThreshold = 5
	maxBackoff       = 300 * time.Second
	stableRunPeriod  = 2 * tickInterval
)

// Status is the supervisor's last-observed state, mirroring the
// teacher's "up"/"down"/"unknown" status strings.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Supervisor restarts a configured model-server binary whenever its
// port stops being held.
type Supervisor struct {
	Addr       string // host:port the model server should be listening on
	BinaryPath string
	Args       []string

	mu            sync.RWMutex
	status        Status
	cmd           *exec.Cmd
	startedAt     time.Time
	failureCount  int
	failureWindow time.Time
	ticker        *time.Ticker
	stopCh        chan struct{}
}

// New constructs a Supervisor. It does nothing until Start is called —
// ModelHost is explicitly optional per configuration.
func New(addr, binaryPath string, args []string) *Supervisor {
	return &Supervisor{
		Addr:       addr,
		BinaryPath: binaryPath,
		Args:       args,
		status:     StatusUnknown,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the supervision loop in a goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	s.ticker = time.NewTicker(tickInterval)
	go s.loop(ctx)
}

// Stop halts supervision and kills the child process if running.
func (s *Supervisor) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Status reports the supervisor's last-observed state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks whether the port is free (the process isn't actually
// listening) and restarts it if so, honoring backoff once 5 failures
// have landed within the 60s failureWindow.
func (s *Supervisor) tick(ctx context.Context) {
	if s.portFree() {
		s.restart(ctx)
		return
	}

	s.mu.Lock()
	if !s.startedAt.IsZero() && time.Since(s.startedAt) >= stableRunPeriod {
		s.failureCount = 0
	}
	s.status = StatusUp
	s.mu.Unlock()
}

// portFree reports whether a TCP listener can bind Addr, which means
// nothing is currently listening there.
func (s *Supervisor) portFree() bool {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func (s *Supervisor) restart(ctx context.Context) {
	s.mu.Lock()
	now := time.Now()
	if s.failureWindow.IsZero() || now.Sub(s.failureWindow) > failureWindow {
		s.failureWindow = now
		s.failureCount = 0
	}
	s.failureCount++
	failureCount := s.failureCount
	s.status = StatusDown
	s.mu.Unlock()

	if failureCount > backoffThreshold {
		backoff := backoffDuration(failureCount)
		logger.Printf("modelhost: backing off %s after %d failed restarts", backoff, failureCount)
		if failureCount == backoffThreshold+1 {
			title := "Model host unavailable"
			message := fmt.Sprintf("The local model server at %s keeps failing to start. Check its configuration.", s.Addr)
			if err := beeep.Alert(title, message, ""); err != nil {
				logger.Printf("modelhost: failed to send OS notification: %v", err)
			}
		}
		time.Sleep(backoff)
	}

	logger.Printf("modelhost: starting model server at %s", s.Addr)
	cmd := exec.CommandContext(ctx, s.BinaryPath, s.Args...)
	if err := cmd.Start(); err != nil {
		logger.Printf("modelhost: failed to start model server: %v", err)
		return
	}

	s.mu.Lock()
	s.cmd = cmd
	s.startedAt = time.Now()
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
	}()
}

// backoffDuration implements 2^(n-4) seconds, capped at maxBackoff,
// for the nth failure once n exceeds backoffThreshold.
func backoffDuration(failureCount int) time.Duration {
	exp := failureCount - 4
	if exp < 0 {
		exp = 0
	}
	d := time.Duration(1<<uint(exp)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
