// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package scheduler runs the two polling loops (HIGH, ALL) that claim
// PENDING tasks and dispatch them to TagPipeline/ChunkPipeline,
// grounded on internal/worker/worker.go's StartWorkers/workerLoop
// shape, generalized from a single Redis-queue dequeue to
// MetaStore.Tasks.ClaimNextTask polling.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/huozhong-in/knowledge-focus/internal/chunking"
	"github.com/huozhong-in/knowledge-focus/internal/errs"
	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/logger"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/tagging"
)

const (
	highPollInterval = 2 * time.Second
	allPollInterval  = 5 * time.Second
	shutdownBudget   = 5 * time.Second
)

// Scheduler owns the HIGH and ALL polling loops.
type Scheduler struct {
	Tasks    *metastore.TaskStore
	Tagging  *tagging.Pipeline
	Chunking *chunking.Pipeline
	Bus      *events.Bus
}

// New constructs a Scheduler.
func New(tasks *metastore.TaskStore, taggingPipeline *tagging.Pipeline, chunkingPipeline *chunking.Pipeline, bus *events.Bus) *Scheduler {
	return &Scheduler{Tasks: tasks, Tagging: taggingPipeline, Chunking: chunkingPipeline, Bus: bus}
}

// Run starts both loops and blocks until ctx is cancelled, then gives
// in-flight work up to shutdownBudget to finish.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.loop(ctx, "high", highPollInterval, true)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "all", allPollInterval, false)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownBudget):
		logger.Printf("scheduler: shutdown budget exceeded, proceeding anyway")
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, highOnly bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, err := s.Tasks.ClaimNextTask(highOnly)
			if err != nil {
				logger.Printf("scheduler[%s]: claim error: %v", name, err)
				continue
			}
			if task == nil {
				continue
			}
			s.dispatch(ctx, task)
		}
	}
}

// dispatch runs the claimed task's pipeline and writes the final task
// state: errs.ErrModelUnavailable defers (RUNNING -> PENDING, undoing
// the claim's own write), any other error fails, success completes.
func (s *Scheduler) dispatch(ctx context.Context, task *metastore.Task) {
	var err error

	switch task.TaskType {
	case metastore.TaskTagging:
		var result tagging.RunResult
		result, err = s.Tagging.RunTask(ctx, task)
		if err == nil {
			s.Bus.Publish(events.TaskCompleted, "scheduler", map[string]interface{}{
				"task_id": task.ID, "task_type": task.TaskType, "result": result,
			})
		}
	case metastore.TaskMultivector:
		err = s.Chunking.RunDocument(ctx, task.TargetFilePath)
		if err == nil {
			s.Bus.Publish(events.TaskCompleted, "scheduler", map[string]interface{}{
				"task_id": task.ID, "task_type": task.TaskType,
			})
		}
	default:
		err = fmt.Errorf("unknown task type: %s", task.TaskType)
	}

	switch {
	case err == nil:
		_ = s.Tasks.Complete(task.ID)
	case errors.Is(err, errs.ErrModelUnavailable):
		_ = s.Tasks.Defer(task.ID)
		s.Bus.Publish(events.ModelValidationFailed, "scheduler", map[string]interface{}{
			"task_id": task.ID, "task_type": task.TaskType, "error": err.Error(),
		})
	default:
		_ = s.Tasks.Fail(task.ID, err.Error())
		s.Bus.Publish(events.ErrorOccurred, "scheduler", map[string]interface{}{
			"task_id": task.ID, "task_type": task.TaskType, "error": err.Error(),
		})
	}
}
