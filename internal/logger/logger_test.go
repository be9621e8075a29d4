// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNewLogger_WritesFormattedLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(path)
	require.NoError(t, err)

	l.Printf("hello %s", "world")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[INFO] hello world")
}

func TestLogger_LevelPrefixesMatchCallingMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(path)
	require.NoError(t, err)

	l.Warnf("low disk: %d%%", 5)
	l.Errorf("retrieval failed: %s", "timeout")
	l.Debugf("chunk count: %d", 12)
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := string(content)
	assert.Contains(t, lines, "[WARN] low disk: 5%")
	assert.Contains(t, lines, "[ERROR] retrieval failed: timeout")
	assert.Contains(t, lines, "[DEBUG] chunk count: 12")
}

func TestLogger_SubscribeReceivesBroadcastLogLines(t *testing.T) {
	l := newTestLogger(t)

	ch, _ := l.Subscribe()
	require.NotNil(t, ch)

	l.Printf("indexing document %d", 42)

	select {
	case line := <-ch:
		assert.Contains(t, line, "indexing document 42")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast line")
	}
}

func TestLogger_UnsubscribeClosesChannel(t *testing.T) {
	l := newTestLogger(t)

	_, bidi := l.Subscribe()
	l.Unsubscribe(bidi)

	_, open := <-bidi
	assert.False(t, open, "channel must be closed after Unsubscribe")
}

func TestLogger_SubscribeOnClosedLoggerReturnsNil(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.Close())

	ch, bidi := l.Subscribe()
	assert.Nil(t, ch)
	assert.Nil(t, bidi)
}

func TestLogger_AfterCloseMessagesAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Must not panic on a closed broadcast channel and must not reopen the file.
	l.Printf("after close")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(content), "after close"))
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestInit_ReturnsSameLoggerOnRepeatedCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.log")
	first, err := Init(path)
	require.NoError(t, err)

	second, err := Init(filepath.Join(t.TempDir(), "ignored.log"))
	require.NoError(t, err)

	assert.Same(t, first, second, "Init must return the process-wide default logger once initialized")
}
