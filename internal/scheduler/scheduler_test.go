// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huozhong-in/knowledge-focus/internal/chunking"
	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/tagging"
	"github.com/huozhong-in/knowledge-focus/internal/vectorstore"
)

func newTestScheduler(t *testing.T, gateway *modelgateway.Gateway) (*Scheduler, *metastore.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kf.db")
	meta, err := metastore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	bus := events.New(io.Discard)
	taggingPipeline := tagging.New(meta, gateway, bus)
	chunkingPipeline := chunking.New(meta, vectorstore.NewMockStore(), gateway, bus, "")

	return New(meta.Tasks, taggingPipeline, chunkingPipeline, bus), meta
}

func TestDispatch_TaggingSuccess_CompletesTask(t *testing.T) {
	s, meta := newTestScheduler(t, modelgateway.NewMock(8))

	filePath := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello world, this is a note about channels"), 0o644))

	now := time.Now()
	_, err := meta.Screening.UpsertScreening(&metastore.FileScreening{
		FilePath: filePath, FileName: "note.txt", FileHash: "h1", Extension: ".txt",
		CreatedTime: now, ModifiedTime: now,
		MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)

	taskID, err := meta.Tasks.Enqueue("tag note", metastore.TaskTagging, metastore.PriorityMedium, filePath, "{}")
	require.NoError(t, err)

	task, err := meta.Tasks.ClaimNextTask(false)
	require.NoError(t, err)
	require.NotNil(t, task)

	s.dispatch(context.Background(), task)

	got, err := meta.Tasks.ByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, metastore.TaskCompleted, got.Status)
}

func TestDispatch_UnknownScreeningRow_FailsTask(t *testing.T) {
	s, meta := newTestScheduler(t, modelgateway.NewMock(8))

	taskID, err := meta.Tasks.Enqueue("tag missing", metastore.TaskTagging, metastore.PriorityMedium, "/does/not/exist.txt", "{}")
	require.NoError(t, err)

	task, err := meta.Tasks.ClaimNextTask(false)
	require.NoError(t, err)
	require.NotNil(t, task)

	s.dispatch(context.Background(), task)

	got, err := meta.Tasks.ByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, metastore.TaskFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage.String)
}

func TestDispatch_UnknownTaskType_FailsTask(t *testing.T) {
	s, meta := newTestScheduler(t, modelgateway.NewMock(8))

	taskID, err := meta.Tasks.Enqueue("mystery", metastore.TaskType("BOGUS"), metastore.PriorityMedium, "/x.txt", "{}")
	require.NoError(t, err)

	task, err := meta.Tasks.ClaimNextTask(false)
	require.NoError(t, err)
	require.NotNil(t, task)

	s.dispatch(context.Background(), task)

	got, err := meta.Tasks.ByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, metastore.TaskFailed, got.Status)
}

// TestDispatch_ModelUnavailable_DefersTask exercises the real Gateway
// (not NewMock) with an empty ProviderStore, so resolving STRUCTURED_OUTPUT
// fails with errs.ErrModelUnavailable and dispatch must revert the claim
// rather than mark the task FAILED.
func TestDispatch_ModelUnavailable_DefersTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kf.db")
	meta, err := metastore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	gateway := modelgateway.New(meta.Providers)

	bus := events.New(io.Discard)
	taggingPipeline := tagging.New(meta, gateway, bus)
	chunkingPipeline := chunking.New(meta, vectorstore.NewMockStore(), gateway, bus, "")
	sched := New(meta.Tasks, taggingPipeline, chunkingPipeline, bus)

	filePath := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello world, this is a note about channels"), 0o644))

	now := time.Now()
	_, err = meta.Screening.UpsertScreening(&metastore.FileScreening{
		FilePath: filePath, FileName: "note.txt", FileHash: "h1", Extension: ".txt",
		CreatedTime: now, ModifiedTime: now,
		MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)

	taskID, err := meta.Tasks.Enqueue("tag note", metastore.TaskTagging, metastore.PriorityMedium, filePath, "{}")
	require.NoError(t, err)

	task, err := meta.Tasks.ClaimNextTask(false)
	require.NoError(t, err)
	require.NotNil(t, task)

	sched.dispatch(context.Background(), task)

	got, err := meta.Tasks.ByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, metastore.TaskPending, got.Status, "no capability assignment must defer, not fail")
	assert.False(t, got.Result.Valid)
}

func TestLoop_ClaimsAndDispatchesUntilContextCancelled(t *testing.T) {
	s, meta := newTestScheduler(t, modelgateway.NewMock(8))

	filePath := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello world, this is a note about channels"), 0o644))

	now := time.Now()
	_, err := meta.Screening.UpsertScreening(&metastore.FileScreening{
		FilePath: filePath, FileName: "note.txt", FileHash: "h1", Extension: ".txt",
		CreatedTime: now, ModifiedTime: now,
		MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)

	taskID, err := meta.Tasks.Enqueue("tag note", metastore.TaskTagging, metastore.PriorityMedium, filePath, "{}")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.loop(ctx, "test", 10*time.Millisecond, false)

	got, err := meta.Tasks.ByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, metastore.TaskCompleted, got.Status, "the loop's ticker should have claimed and dispatched the pending task before ctx expired")
}

func TestRun_StopsWithinShutdownBudgetWhenIdle(t *testing.T) {
	s, _ := newTestScheduler(t, modelgateway.NewMock(8))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within its shutdown budget")
	}
}
