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
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/retrieval"
	"github.com/huozhong-in/knowledge-focus/internal/sessions"
	"github.com/huozhong-in/knowledge-focus/internal/vectorstore"
)

func newTestChatHandler(t *testing.T) (*ChatHandler, *metastore.Store) {
	t.Helper()
	meta := newTestMeta(t)
	gateway := modelgateway.NewMock(8)
	vectors := vectorstore.NewMockStore()
	retriever := retrieval.New(meta, vectors, gateway)
	sess := sessions.New(meta, gateway, meta.Tasks)
	return NewChatHandler(meta, sess, retriever, gateway), meta
}

func TestHandleSessions_PostThenGet(t *testing.T) {
	h, _ := newTestChatHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSessions(rec, httptest.NewRequest("POST", "/chat/sessions", nil))
	require.Equal(t, 201, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSessions(rec, httptest.NewRequest("GET", "/chat/sessions", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "New Chat")
}

func TestHandleSessions_RejectsUnknownMethod(t *testing.T) {
	h, _ := newTestChatHandler(t)
	rec := httptest.NewRecorder()
	h.HandleSessions(rec, httptest.NewRequest("DELETE", "/chat/sessions", nil))
	assert.Equal(t, 405, rec.Code)
}

func TestHandleSessionsSmart_TitlesFromFirstMessage(t *testing.T) {
	h, _ := newTestChatHandler(t)
	req := httptest.NewRequest("POST", "/chat/sessions/smart", strings.NewReader(`{"first_message":"hello there"}`))
	rec := httptest.NewRecorder()
	h.HandleSessionsSmart(rec, req)
	require.Equal(t, 201, rec.Code)
}

func TestHandleSessionByID_GetRenameDelete(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.HandleSessionByID(rec, httptest.NewRequest("GET", "/chat/sessions/"+itoa(session.ID), nil))
	require.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSessionByID(rec, httptest.NewRequest("PUT", "/chat/sessions/"+itoa(session.ID), strings.NewReader(`{"name":"Renamed"}`)))
	require.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSessionByID(rec, httptest.NewRequest("DELETE", "/chat/sessions/"+itoa(session.ID), nil))
	require.Equal(t, 200, rec.Code)

	deleted, err := meta.ChatSessions.SessionByID(session.ID)
	require.NoError(t, err)
	assert.False(t, deleted.IsActive, "DELETE soft-deletes the session")
}

func TestHandleSessionByID_UnknownIDReturnsNotFound(t *testing.T) {
	h, _ := newTestChatHandler(t)
	rec := httptest.NewRecorder()
	h.HandleSessionByID(rec, httptest.NewRequest("GET", "/chat/sessions/999", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandleSessionMessages_PostThenGet(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)

	path := "/chat/sessions/" + itoa(session.ID) + "/messages"
	rec := httptest.NewRecorder()
	h.HandleSessionMessages(rec, httptest.NewRequest("POST", path, strings.NewReader(`{"message_id":"m1","role":"user","content":"hi"}`)))
	require.Equal(t, 201, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSessionMessages(rec, httptest.NewRequest("GET", path, nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi")
}

func TestHandlePinnedFiles_PostThenGet(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)

	path := "/chat/sessions/" + itoa(session.ID) + "/pinned-files"
	rec := httptest.NewRecorder()
	h.HandlePinnedFiles(rec, httptest.NewRequest("POST", path, strings.NewReader(`{"file_path":"/a.txt","file_name":"a.txt"}`)))
	require.Equal(t, 201, rec.Code)

	rec = httptest.NewRecorder()
	h.HandlePinnedFiles(rec, httptest.NewRequest("GET", path, nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "/a.txt")
}

func TestHandlePinnedFileByPath_Delete(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)
	_, err = meta.Pinned.Pin(session.ID, "/a.txt", "a.txt", "{}")
	require.NoError(t, err)

	path := "/chat/sessions/" + itoa(session.ID) + "/pinned-files?file_path=/a.txt"
	rec := httptest.NewRecorder()
	h.HandlePinnedFileByPath(rec, httptest.NewRequest("DELETE", path, nil))
	require.Equal(t, 200, rec.Code)

	pins, err := meta.Pinned.BySession(session.ID)
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestHandlePinnedFileByPath_MissingQueryParamIsBadRequest(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)

	path := "/chat/sessions/" + itoa(session.ID) + "/pinned-files"
	rec := httptest.NewRecorder()
	h.HandlePinnedFileByPath(rec, httptest.NewRequest("DELETE", path, nil))
	assert.Equal(t, 400, rec.Code)
}

func TestHandleUIStream_StreamsDeltasAndPersistsAssistantMessage(t *testing.T) {
	h, meta := newTestChatHandler(t)
	session, err := meta.ChatSessions.CreateSession("New Chat")
	require.NoError(t, err)

	body := `{"session_id":` + itoa(session.ID) + `,"message_id":"m1","query":"what is the plan?"}`
	req := httptest.NewRequest("POST", "/chat/ui-stream", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleUIStream(rec, req)

	require.Equal(t, 200, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "event: start")
	assert.Contains(t, out, "event: text-delta")
	assert.Contains(t, out, "mock reply to:")
	assert.Contains(t, out, "data: [DONE]")

	msgs, err := meta.ChatSessions.MessagesBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "user query and assistant reply must both be saved")
	assert.Equal(t, metastore.RoleAssistant, msgs[1].Role)
}

func TestHandleUIStream_MissingQueryIsBadRequest(t *testing.T) {
	h, _ := newTestChatHandler(t)
	rec := httptest.NewRecorder()
	h.HandleUIStream(rec, httptest.NewRequest("POST", "/chat/ui-stream", strings.NewReader(`{}`)))
	assert.Equal(t, 400, rec.Code)
}

func TestHandleUIStream_RejectsNonPost(t *testing.T) {
	h, _ := newTestChatHandler(t)
	rec := httptest.NewRecorder()
	h.HandleUIStream(rec, httptest.NewRequest("GET", "/chat/ui-stream", nil))
	assert.Equal(t, 405, rec.Code)
}
