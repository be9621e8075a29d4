// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON_SetsContentTypeStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 201, map[string]int{"id": 5})

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":5}`, rec.Body.String())
}

func TestWriteError_WrapsMessageInErrorField(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, 400, "bad request")

	assert.Equal(t, 400, rec.Code)
	assert.JSONEq(t, `{"error":"bad request"}`, rec.Body.String())
}

func TestDecodeJSON_DecodesBodyAndClosesIt(t *testing.T) {
	req := httptest.NewRequest("POST", "/x", strings.NewReader(`{"name":"a"}`))
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, decodeJSON(req, &out))
	assert.Equal(t, "a", out.Name)
}

func TestDecodeJSON_ErrorsOnMalformedBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/x", strings.NewReader(`not json`))
	var out map[string]string
	assert.Error(t, decodeJSON(req, &out))
}
