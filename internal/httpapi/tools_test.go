// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huozhong-in/knowledge-focus/internal/events"
)

func TestHandleResponse_PublishesToolResultOnBus(t *testing.T) {
	bus := events.New(io.Discard)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	h := NewToolsHandler(bus)
	req := httptest.NewRequest("POST", "/tools/response", strings.NewReader(`{"call_id":"c1","success":true,"result":"ok"}`))
	rec := httptest.NewRecorder()
	h.HandleResponse(rec, req)

	require.Equal(t, 200, rec.Code)

	evt := <-sub
	assert.Equal(t, "tool-response", evt.Event)
	assert.Equal(t, "c1", evt.Payload["source"])
	assert.Equal(t, "ok", evt.Payload["result"])
}

func TestHandleResponse_MissingCallIDIsBadRequest(t *testing.T) {
	bus := events.New(io.Discard)
	h := NewToolsHandler(bus)
	rec := httptest.NewRecorder()
	h.HandleResponse(rec, httptest.NewRequest("POST", "/tools/response", strings.NewReader(`{}`)))
	assert.Equal(t, 400, rec.Code)
}

func TestHandleResponse_RejectsNonPost(t *testing.T) {
	bus := events.New(io.Discard)
	h := NewToolsHandler(bus)
	rec := httptest.NewRecorder()
	h.HandleResponse(rec, httptest.NewRequest("GET", "/tools/response", nil))
	assert.Equal(t, 405, rec.Code)
}
