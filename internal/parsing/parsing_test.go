// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedFile(t *testing.T) {
	cases := map[string]bool{
		"report.pdf":   true,
		"notes.md":     true,
		"notes.txt":    true,
		"Sheet.XLSX":   true,
		"legacy.xls":   true,
		"page.html":    true,
		"page.htm":     true,
		"thread.eml":   true,
		"contract.docx": true,
		"archive.zip":  false,
		"noext":        false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsSupportedFile(name), name)
	}
}

func TestIsTemporaryFile(t *testing.T) {
	assert.True(t, IsTemporaryFile("/tmp/~$report.docx"))
	assert.True(t, IsTemporaryFile("/tmp/._report.docx"))
	assert.True(t, IsTemporaryFile("/tmp/scratch.tmp"))
	assert.False(t, IsTemporaryFile("/tmp/report.docx"))
}

func TestDispatchParse_UnsupportedExtension(t *testing.T) {
	_, err := DispatchParse("/tmp/archive.zip", "/tmp")
	assert.Error(t, err)
}

func TestDispatchParse_TextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	parsed, err := DispatchParse(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "hello world", parsed.FlatText)
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, ItemText, parsed.Items[0].Kind)
}

func TestTextParser_EmptyFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := DispatchParse(path, dir)
	assert.Error(t, err)
}
