// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

func TestHandleTaskByID_ReturnsTask(t *testing.T) {
	meta := newTestMeta(t)
	id, err := meta.Tasks.Enqueue("tag", metastore.TaskTagging, metastore.PriorityHigh, "/a.txt", "")
	require.NoError(t, err)

	h := NewTaskHandler(meta.Tasks)
	req := httptest.NewRequest("GET", "/task/"+itoa(id), nil)
	rec := httptest.NewRecorder()
	h.HandleTaskByID(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tag")
}

func TestHandleTaskByID_UnknownIDReturnsNotFound(t *testing.T) {
	meta := newTestMeta(t)
	h := NewTaskHandler(meta.Tasks)
	req := httptest.NewRequest("GET", "/task/999", nil)
	rec := httptest.NewRecorder()
	h.HandleTaskByID(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestHandleTaskByID_RejectsNonGet(t *testing.T) {
	meta := newTestMeta(t)
	h := NewTaskHandler(meta.Tasks)
	rec := httptest.NewRecorder()
	h.HandleTaskByID(rec, httptest.NewRequest("POST", "/task/1", nil))
	assert.Equal(t, 405, rec.Code)
}

func TestHandleSystemConfigKey_PutThenGet(t *testing.T) {
	meta := newTestMeta(t)
	h := NewSystemConfigHandler(meta.System)

	rec := httptest.NewRecorder()
	h.HandleSystemConfigKey(rec, httptest.NewRequest("PUT", "/system-config/theme", strings.NewReader(`{"value":"dark"}`)))
	require.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSystemConfigKey(rec, httptest.NewRequest("GET", "/system-config/theme", nil))
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"key":"theme","value":"dark"}`, rec.Body.String())
}

func TestHandleSystemConfigKey_MissingKeyIsBadRequest(t *testing.T) {
	meta := newTestMeta(t)
	h := NewSystemConfigHandler(meta.System)
	rec := httptest.NewRecorder()
	h.HandleSystemConfigKey(rec, httptest.NewRequest("GET", "/system-config/", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestHandleSystemConfigKey_RejectsUnknownMethod(t *testing.T) {
	meta := newTestMeta(t)
	h := NewSystemConfigHandler(meta.System)
	rec := httptest.NewRecorder()
	h.HandleSystemConfigKey(rec, httptest.NewRequest("DELETE", "/system-config/theme", nil))
	assert.Equal(t, 405, rec.Code)
}
