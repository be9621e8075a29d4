// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelhost

import (
	"context"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestNew_StartsUnknownAndDoesNothingUntilStart(t *testing.T) {
	s := New(freeAddr(t), "/bin/true", nil)
	assert.Equal(t, StatusUnknown, s.Status())
}

func TestPortFree_TrueWhenNothingListening(t *testing.T) {
	s := New(freeAddr(t), "/bin/true", nil)
	assert.True(t, s.portFree())
}

func TestPortFree_FalseWhenSomethingIsListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(ln.Addr().String(), "/bin/true", nil)
	assert.False(t, s.portFree())
}

func TestTick_RestartsProcessWhenPortIsFree(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	s := New(freeAddr(t), sleep, []string{"5"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.tick(ctx)

	assert.Equal(t, StatusDown, s.Status(), "a freshly-restarted process is reported down until the port is actually held")
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	require.NotNil(t, cmd)
	require.NotNil(t, cmd.Process)

	_ = cmd.Process.Kill()
}

func TestTick_ReportsUpWhenPortIsHeld(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(ln.Addr().String(), "/bin/true", nil)
	s.tick(context.Background())
	assert.Equal(t, StatusUp, s.Status())
}

func TestBackoffDuration_ExponentialAboveThresholdCappedAtMax(t *testing.T) {
	assert.Equal(t, time.Second, backoffDuration(0))
	assert.Equal(t, time.Second, backoffDuration(4))
	assert.Equal(t, 2*time.Second, backoffDuration(5))
	assert.Equal(t, 4*time.Second, backoffDuration(6))
	assert.Equal(t, maxBackoff, backoffDuration(20), "must cap rather than overflow for large failure counts")
}

func TestStop_KillsRunningProcessAndClosesStopChannel(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	s := New(freeAddr(t), sleep, []string{"30"})
	s.ticker = time.NewTicker(time.Hour)
	s.tick(context.Background())

	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	require.NotNil(t, cmd)
	require.NotNil(t, cmd.Process)

	s.Stop()

	_, open := <-s.stopCh
	assert.False(t, open, "Stop must close stopCh so loop exits")
}
