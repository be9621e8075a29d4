// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/huozhong-in/knowledge-focus/internal/chunking"
	"github.com/huozhong-in/knowledge-focus/internal/config"
	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/httpapi"
	"github.com/huozhong-in/knowledge-focus/internal/logger"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/modelhost"
	"github.com/huozhong-in/knowledge-focus/internal/retrieval"
	"github.com/huozhong-in/knowledge-focus/internal/scheduler"
	"github.com/huozhong-in/knowledge-focus/internal/sessions"
	"github.com/huozhong-in/knowledge-focus/internal/tagging"
	"github.com/huozhong-in/knowledge-focus/internal/vectorstore"
)

const defaultEmbeddingDim = 768

func main() {
	stdout := events.CaptureStdout()

	logPath := os.Getenv("KF_LOG_FILE")
	if logPath == "" {
		logPath = "knowledge-focus.log"
	}
	if _, err := logger.Init(logPath); err != nil {
		log.Printf("failed to initialize logger: %v, using stdout only", err)
	}

	ppidFlag := flag.Int("ppid", os.Getppid(), "parent process id to monitor for liveness")
	modelServerPath := flag.String("model-server", os.Getenv("KF_MODEL_SERVER_BIN"), "optional local model server binary to supervise")

	cfg, err := config.Load() // registers --port/--host/--db-path and calls flag.Parse() itself
	if err != nil {
		logger.Printf("failed to load configuration: %v", err)
		os.Exit(2)
	}

	meta, err := metastore.Open(cfg.DBPath)
	if err != nil {
		logger.Printf("failed to open metastore: %v", err)
		os.Exit(2)
	}
	defer meta.Close()

	bus := events.New(stdout)
	if redisClient, err := config.NewRedisClient(context.Background()); err == nil {
		bus = bus.WithRedis(redisClient, "knowledge-focus:events")
	} else {
		logger.Printf("redis unavailable, event bus runs stdout/websocket-only: %v", err)
	}

	vectors := openVectorStore(cfg)

	gateway := modelgateway.New(meta.Providers)

	taggingPipeline := tagging.New(meta, gateway, bus)
	chunkingPipeline := chunking.New(meta, vectors, gateway, bus, cfg.DoclingDir)
	taskScheduler := scheduler.New(meta.Tasks, taggingPipeline, chunkingPipeline, bus)

	sessionStore := sessions.New(meta, gateway, meta.Tasks)
	retriever := retrieval.New(meta, vectors, gateway)

	var supervisor *modelhost.Supervisor
	if *modelServerPath != "" {
		supervisor = modelhost.New("127.0.0.1:"+strconv.Itoa(cfg.Port+1), *modelServerPath, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.WatchParent(ctx, *ppidFlag, cancel)
	go scheduler.WaitForShutdownSignal(cancel)

	go taskScheduler.Run(ctx)
	if supervisor != nil {
		supervisor.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := httpapi.New(addr, meta, gateway, sessionStore, retriever, bus)
	logger.Printf("HTTP server listening on %s", addr)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Printf("http server error: %v", err)
		os.Exit(2)
	}

	if supervisor != nil {
		supervisor.Stop()
	}
	logger.Printf("knowledge-focus shut down cleanly")
}

// openVectorStore dials Qdrant at cfg.QdrantAddr and falls back to an
// in-memory MockStore when it is unreachable, matching the teacher's
// own "UI-only mode" degradation for a missing vector backend.
func openVectorStore(cfg *config.Config) vectorstore.Store {
	conn, err := grpc.NewClient(cfg.QdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Printf("failed to dial Qdrant at %s: %v, using in-memory vector store", cfg.QdrantAddr, err)
		return vectorstore.NewMockStore()
	}

	store, err := vectorstore.NewQdrantStore(context.Background(), conn, "knowledge_focus", embeddingDim())
	if err != nil {
		logger.Printf("failed to init Qdrant collection: %v, using in-memory vector store", err)
		return vectorstore.NewMockStore()
	}
	return store
}

func embeddingDim() int {
	if raw := os.Getenv("KF_EMBED_DIM"); raw != "" {
		if dim, err := strconv.Atoi(raw); err == nil && dim > 0 {
			return dim
		}
	}
	return defaultEmbeddingDim
}
