// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package tagging

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
)

func newTestPipeline(t *testing.T) (*Pipeline, *metastore.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kf.db")
	meta, err := metastore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	bus := events.New(io.Discard)
	return New(meta, modelgateway.NewMock(8), bus), meta
}

func newPendingRow(t *testing.T, meta *metastore.Store, path, content string) *metastore.FileScreening {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	now := time.Now()
	id, err := meta.Screening.UpsertScreening(&metastore.FileScreening{
		FilePath: path, FileName: filepath.Base(path), FileHash: "h-" + filepath.Base(path),
		Extension: filepath.Ext(path), CreatedTime: now, ModifiedTime: now,
		MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)
	row, err := meta.Screening.ByID(id)
	require.NoError(t, err)
	return row
}

func TestRunSingle_InternsAndLinksTags(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	row := newPendingRow(t, meta, path, "some substantial note content about the project roadmap")

	require.NoError(t, p.RunSingle(context.Background(), row))

	updated, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, metastore.ScreeningProcessed, updated.Status)
	assert.True(t, updated.TaggedTime.Valid)
	assert.NotEmpty(t, updated.TagsDisplayIDs)

	matches, err := meta.Tags.SearchByTagNames([]string{"mock_tag_one"}, "OR")
	require.NoError(t, err)
	assert.Contains(t, matches, row.ID)
}

func TestRunSingle_EmptyTextFinishesWithNoTags(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "empty.txt")
	row := newPendingRow(t, meta, path, "")

	require.NoError(t, p.RunSingle(context.Background(), row))

	updated, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, metastore.ScreeningProcessed, updated.Status)
	assert.Empty(t, updated.TagsDisplayIDs, "empty text gets no tags, but is still marked processed")
}

func TestRunSingle_SkipsWhenAlreadyTaggedAfterModification(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	row := newPendingRow(t, meta, path, "content")

	// Simulate a prior tagging pass newer than the file's modified time.
	require.NoError(t, meta.Screening.MarkTagged(row.ID, row.ModifiedTime.Add(time.Hour)))
	refetched, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)

	require.NoError(t, p.RunSingle(context.Background(), refetched))

	final, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)
	assert.Empty(t, final.TagsDisplayIDs, "idempotency guard must skip re-tagging, so no tags get linked")
}

func TestRunSingle_UnsupportedExtensionYieldsNoTagsWithoutError(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.bin")
	row := newPendingRow(t, meta, path, "binary-ish content")

	require.NoError(t, p.RunSingle(context.Background(), row))

	updated, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, metastore.ScreeningProcessed, updated.Status)
	assert.Empty(t, updated.TagsDisplayIDs)
}

func TestRunTask_BatchModeViaExtraDataScreeningIDs(t *testing.T) {
	p, meta := newTestPipeline(t)
	rowA := newPendingRow(t, meta, filepath.Join(t.TempDir(), "a.txt"), "note about alpha")
	rowB := newPendingRow(t, meta, filepath.Join(t.TempDir(), "b.txt"), "note about beta")

	extra, err := json.Marshal(map[string][]int64{"screening_ids": {rowA.ID, rowB.ID}})
	require.NoError(t, err)

	task := &metastore.Task{ExtraData: string(extra)}
	result, err := p.RunTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestRunTask_SingleModeViaTargetFilePath(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	row := newPendingRow(t, meta, path, "a single note")

	task := &metastore.Task{TargetFilePath: path}
	result, err := p.RunTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.SuccessCount)

	updated, err := meta.Screening.ByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, metastore.ScreeningProcessed, updated.Status)
}

func TestRunTask_SkipsNonPendingRows(t *testing.T) {
	p, meta := newTestPipeline(t)
	row := newPendingRow(t, meta, filepath.Join(t.TempDir(), "a.txt"), "already done")
	require.NoError(t, meta.Screening.MarkTagged(row.ID, time.Now()))

	extra, err := json.Marshal(map[string][]int64{"screening_ids": {row.ID}})
	require.NoError(t, err)

	result, err := p.RunTask(context.Background(), &metastore.Task{ExtraData: string(extra)})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed, "a row that is not PENDING must not be counted or reprocessed")
}

func TestRunTask_UnknownTargetFilePathReturnsError(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.RunTask(context.Background(), &metastore.Task{TargetFilePath: "/no/such/row.txt"})
	assert.Error(t, err)
}

func TestRunTask_HighPrioritySingleFileChainsMultivectorWhenRecentlyPinned(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	newPendingRow(t, meta, path, "a single note about the pinned file")

	sess, err := meta.ChatSessions.CreateSession("chat")
	require.NoError(t, err)
	_, err = meta.Pinned.Pin(sess.ID, path, "a.txt", "{}")
	require.NoError(t, err)

	task := &metastore.Task{TargetFilePath: path, Priority: metastore.PriorityHigh}
	_, err = p.RunTask(context.Background(), task)
	require.NoError(t, err)

	chained, err := meta.Tasks.ClaimNextTask(true)
	require.NoError(t, err)
	require.NotNil(t, chained, "a HIGH single-file TAGGING success must chain a MULTIVECTOR task for a file pinned within 24h")
	assert.Equal(t, metastore.TaskMultivector, chained.TaskType)
	assert.Equal(t, path, chained.TargetFilePath)
}

func TestRunTask_HighPrioritySingleFileDoesNotChainWhenPinIsStale(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	newPendingRow(t, meta, path, "a single note about the stale-pinned file")

	sess, err := meta.ChatSessions.CreateSession("chat")
	require.NoError(t, err)
	_, err = meta.Pinned.Pin(sess.ID, path, "a.txt", "{}")
	require.NoError(t, err)
	_, err = meta.DB().Exec(
		"UPDATE pinned_files SET pinned_at = ? WHERE session_id = ? AND file_path = ?",
		time.Now().UTC().Add(-48*time.Hour), sess.ID, path,
	)
	require.NoError(t, err)

	task := &metastore.Task{TargetFilePath: path, Priority: metastore.PriorityHigh}
	_, err = p.RunTask(context.Background(), task)
	require.NoError(t, err)

	chained, err := meta.Tasks.ClaimNextTask(true)
	require.NoError(t, err)
	assert.Nil(t, chained, "moving pinned_at back 48h must not chain a new MULTIVECTOR task")
}

func TestRunTask_BatchModeNeverChainsEvenWhenPinnedAndHighPriority(t *testing.T) {
	p, meta := newTestPipeline(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	row := newPendingRow(t, meta, path, "a batch-mode note about the pinned file")

	sess, err := meta.ChatSessions.CreateSession("chat")
	require.NoError(t, err)
	_, err = meta.Pinned.Pin(sess.ID, path, "a.txt", "{}")
	require.NoError(t, err)

	extra, err := json.Marshal(map[string][]int64{"screening_ids": {row.ID}})
	require.NoError(t, err)

	task := &metastore.Task{ExtraData: string(extra), Priority: metastore.PriorityHigh}
	_, err = p.RunTask(context.Background(), task)
	require.NoError(t, err)

	chained, err := meta.Tasks.ClaimNextTask(true)
	require.NoError(t, err)
	assert.Nil(t, chained, "the chain only applies to the HIGH single-file path, never a batch run")
}
