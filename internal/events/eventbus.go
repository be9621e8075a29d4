// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package events is the process's notification fan-out: every pipeline
// and HTTP handler reports progress and state changes through one Bus,
// which writes newline-delimited JSON to a pre-captured stdout handle
// for the desktop shell to tail, and fans the same record out to any
// live WebSocket subscriber, grounded on internal/logger.Logger's
// broadcast-channel-per-subscriber shape.
package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sentinel = "EVENT_NOTIFY_JSON:"

// Known event names, per spec.md §4.9.
const (
	TagsUpdated          = "tags-updated"
	TaskCompleted        = "task-completed"
	FileProcessed        = "file-processed"
	ErrorOccurred        = "error-occurred"
	SystemStatus         = "system-status"
	ModelValidationFailed = "model-validation-failed"
	RAGRetrievalResult   = "rag-retrieval-result"
)

// ProgressEvent returns the "<kind>-progress" name for a pipeline kind
// ("tagging", "chunking").
func ProgressEvent(kind string) string { return kind + "-progress" }

// Event is one notification record.
type Event struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// Bus writes Events as NDJSON to a captured stdout stream and fans
// them out to WebSocket subscribers. Delivery is best-effort: a full
// subscriber channel drops the event rather than blocking the
// publisher, and a write failure to stdout is ignored, never returned,
// since losing a notification must never corrupt pipeline state.
type Bus struct {
	out         *bufio.Writer
	mu          sync.Mutex
	subMu       sync.RWMutex
	subscribers map[chan Event]bool
	redis       *redis.Client
	redisChan   string
}

// New wraps stdout (captured by the caller before any logging
// redirection rebinds os.Stdout) as the Bus's NDJSON sink.
func New(stdout io.Writer) *Bus {
	return &Bus{
		out:         bufio.NewWriter(stdout),
		subscribers: make(map[chan Event]bool),
	}
}

// WithRedis attaches a best-effort Redis pub/sub mirror, grounded on
// config.NewRedisClient; a nil client leaves the Bus stdout/WebSocket-only.
func (b *Bus) WithRedis(client *redis.Client, channel string) *Bus {
	b.redis = client
	b.redisChan = channel
	return b
}

// Publish emits an event. source and extra key/values are merged into
// payload alongside a timestamp, matching spec.md's
// `{event, payload:{timestamp, source, ...}}` shape.
func (b *Bus) Publish(name, source string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    source,
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt := Event{Event: name, Payload: payload}

	line, err := json.Marshal(evt)
	if err != nil {
		return
	}

	b.mu.Lock()
	fmt.Fprintf(b.out, "%s%s\n", sentinel, line)
	b.out.Flush()
	b.mu.Unlock()

	b.subMu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
	b.subMu.RUnlock()

	if b.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		b.redis.Publish(ctx, b.redisChan, line)
		cancel()
	}
}

// Progress is a convenience wrapper for the pipeline "<kind>-progress" events.
func (b *Bus) Progress(kind, source string, percent int, extra map[string]interface{}) {
	payload := map[string]interface{}{"percent": percent}
	for k, v := range extra {
		payload[k] = v
	}
	b.Publish(ProgressEvent(kind), source, payload)
}

// Subscribe registers a channel for live WebSocket delivery. Callers
// must call Unsubscribe when done to avoid a subscriber leak.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.subMu.Lock()
	b.subscribers[ch] = true
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// CaptureStdout returns the process's current stdout handle (the
// *os.File itself, not a duplicated descriptor) so the Bus keeps
// writing NDJSON to it even if logging setup later reassigns os.Stdout.
func CaptureStdout() *os.File {
	return os.Stdout
}
