// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

func newTestMeta(t *testing.T) *metastore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kf.db")
	meta, err := metastore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return meta
}
