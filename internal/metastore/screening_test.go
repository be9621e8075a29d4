// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScreeningRow(path, hash string) *FileScreening {
	now := time.Now()
	return &FileScreening{
		FilePath: path, FileName: path, FileHash: hash,
		CreatedTime: now, ModifiedTime: now,
		MatchedRules: "[]", ExtraMetadata: "{}",
	}
}

func TestScreeningStore_UpsertScreening_InsertThenUpdate(t *testing.T) {
	store := openTestStore(t)

	id, err := store.Screening.UpsertScreening(newScreeningRow("/docs/a.txt", "h1"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	row := newScreeningRow("/docs/a.txt", "h1")
	row.FileSize = 42
	id2, err := store.Screening.UpsertScreening(row)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "same (path, hash) upserts onto the existing row")

	fetched, err := store.Screening.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), fetched.FileSize)
	assert.Equal(t, ScreeningPending, fetched.Status)
}

func TestScreeningStore_UpsertScreeningBatch_CommitsOnce(t *testing.T) {
	store := openTestStore(t)

	rows := []*FileScreening{
		newScreeningRow("/docs/a.txt", "h1"),
		newScreeningRow("/docs/b.txt", "h2"),
		newScreeningRow("/docs/c.txt", "h3"),
	}
	require.NoError(t, store.Screening.UpsertScreeningBatch(rows))

	byPath, err := store.Screening.ByFilePath("/docs/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "h2", byPath.FileHash)
}

func TestScreeningStore_MarkTaggedAndFailed(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Screening.UpsertScreening(newScreeningRow("/docs/a.txt", "h1"))
	require.NoError(t, err)

	require.NoError(t, store.Screening.MarkTagged(id, time.Now()))
	row, err := store.Screening.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, ScreeningProcessed, row.Status)
	assert.True(t, row.TaggedTime.Valid)

	require.NoError(t, store.Screening.MarkFailed(id))
	row, err = store.Screening.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, ScreeningFailed, row.Status)
}

func TestScreeningStore_DeleteByPathPrefix(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Screening.UpsertScreeningBatch([]*FileScreening{
		newScreeningRow("/docs/keep/a.txt", "h1"),
		newScreeningRow("/docs/drop/b.txt", "h2"),
		newScreeningRow("/docs/drop/c.txt", "h3"),
	}))

	deleted, err := store.Screening.DeleteByPathPrefix("/docs/drop/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = store.Screening.ByFilePath("/docs/drop/b.txt")
	assert.Error(t, err, "deleted row should no longer resolve")

	kept, err := store.Screening.ByFilePath("/docs/keep/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "h1", kept.FileHash)
}

func TestScreeningStore_SearchByIDs_EmptyReturnsNil(t *testing.T) {
	store := openTestStore(t)
	rows, err := store.Screening.SearchByIDs(nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
