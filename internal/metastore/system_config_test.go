// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemConfigStore_GetUnsetKeyReturnsEmptyNoError(t *testing.T) {
	store := openTestStore(t)
	value, err := store.System.Get("nope")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestSystemConfigStore_SetThenGetRoundTrips(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.System.Set("theme", "dark"))

	value, err := store.System.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", value)
}

func TestSystemConfigStore_SetOverwritesExistingValue(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.System.Set("theme", "dark"))
	require.NoError(t, store.System.Set("theme", "light"))

	value, err := store.System.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)
}
