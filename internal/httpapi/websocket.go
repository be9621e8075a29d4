// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Grounded on websocket_handler.go's WebSocketManager: same
// upgrade-then-ping-loop-then-prune-dead-connections shape, with the
// Redis pending-message replay dropped (there is no per-client
// multi-tenant delivery queue here) and the client map's payload
// source swapped from a Redis subscription for a direct
// events.Bus.Subscribe feed, so every connected UI client sees the
// same live event stream the process already emits to stdout.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/logger"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventStreamHandler fans out events.Bus notifications to any number
// of live WebSocket clients.
type EventStreamHandler struct {
	Bus *events.Bus

	clientsMu sync.RWMutex
	clients   map[string]*websocket.Conn
}

// NewEventStreamHandler constructs an EventStreamHandler and starts
// its keepalive ping loop.
func NewEventStreamHandler(bus *events.Bus) *EventStreamHandler {
	h := &EventStreamHandler{Bus: bus, clients: make(map[string]*websocket.Conn)}
	go h.pingLoop()
	return h
}

func (h *EventStreamHandler) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		h.pingAllClients()
	}
}

func (h *EventStreamHandler) pingAllClients() {
	h.clientsMu.RLock()
	clients := make(map[string]*websocket.Conn, len(h.clients))
	for id, conn := range h.clients {
		clients[id] = conn
	}
	h.clientsMu.RUnlock()

	for clientID, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
			logger.Printf("httpapi: failed to ping client %s, dropping connection: %v", clientID, err)
			h.clientsMu.Lock()
			delete(h.clients, clientID)
			h.clientsMu.Unlock()
			conn.Close()
			continue
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

// HandleEvents answers GET /events/stream?client_id=..., upgrading to
// a WebSocket and relaying every Bus event as a JSON text frame until
// the client disconnects.
func (h *EventStreamHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[clientID] = conn
	h.clientsMu.Unlock()
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, clientID)
		h.clientsMu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	sub := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(sub)

	// Drain client-sent frames (close/control only; this is a
	// server-push channel) so pong handling keeps firing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for evt := range sub {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
