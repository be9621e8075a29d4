// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Server wires every handler onto one *http.ServeMux and serves it,
// grounded on cmd/hive-server/main.go's mux.HandleFunc(...) wiring
// block — no third-party router, matching the teacher's own choice.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/retrieval"
	"github.com/huozhong-in/knowledge-focus/internal/sessions"
)

// Server is the process's HTTP front door.
type Server struct {
	httpServer *http.Server
}

// New builds a Server with every route registered.
func New(addr string, meta *metastore.Store, gateway *modelgateway.Gateway, sess *sessions.Store, retriever *retrieval.Retriever, bus *events.Bus) *Server {
	mux := http.NewServeMux()

	configHandler := NewConfigHandler(meta.Directories)
	pinFileHandler := NewPinFileHandler(meta.Tasks)
	taskHandler := NewTaskHandler(meta.Tasks)
	systemConfigHandler := NewSystemConfigHandler(meta.System)
	chatHandler := NewChatHandler(meta, sess, retriever, gateway)
	taggingHandler := NewTaggingHandler(meta.Tags, meta.Screening)
	toolsHandler := NewToolsHandler(bus)
	eventStream := NewEventStreamHandler(bus)

	mux.HandleFunc("/health", HandleHealth)

	mux.HandleFunc("/config/all", configHandler.HandleConfigAll)
	mux.HandleFunc("/directories", configHandler.HandleDirectories)
	mux.HandleFunc("/directories/", configHandler.HandleDirectoryByID(meta.Screening))
	mux.HandleFunc("/bundle-extensions", configHandler.HandleBundleExtensions)
	mux.HandleFunc("/bundle-extensions/", configHandler.HandleBundleExtensionByID)
	mux.HandleFunc("/folders/hierarchy", configHandler.HandleFolderHierarchy)

	mux.HandleFunc("/pin-file", pinFileHandler.HandlePinFile)
	mux.HandleFunc("/task/", taskHandler.HandleTaskByID)
	mux.HandleFunc("/system-config/", systemConfigHandler.HandleSystemConfigKey)

	mux.HandleFunc("/chat/sessions/smart", chatHandler.HandleSessionsSmart)
	mux.HandleFunc("/chat/sessions", chatHandler.HandleSessions)
	mux.HandleFunc("/chat/ui-stream", chatHandler.HandleUIStream)
	mux.HandleFunc("/chat/sessions/", routeChatSessionSubpaths(chatHandler))

	mux.HandleFunc("/tagging/search-files", taggingHandler.HandleSearchFiles)
	mux.HandleFunc("/tagging/tag-cloud", taggingHandler.HandleTagCloud)

	mux.HandleFunc("/tools/response", toolsHandler.HandleResponse)

	mux.HandleFunc("/events/stream", eventStream.HandleEvents)

	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// routeChatSessionSubpaths dispatches the three shapes that share the
// /chat/sessions/{id}... prefix by their trailing path segment, since
// ServeMux can't pattern-match a path parameter followed by a fixed
// suffix on its own.
func routeChatSessionSubpaths(h *ChatHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case hasSuffix(r.URL.Path, "/messages"):
			h.HandleSessionMessages(w, r)
		case hasSuffix(r.URL.Path, "/pinned-files"):
			if r.Method == http.MethodDelete {
				h.HandlePinnedFileByPath(w, r)
			} else {
				h.HandlePinnedFiles(w, r)
			}
		default:
			h.HandleSessionByID(w, r)
		}
	}
}

func hasSuffix(path, suffix string) bool {
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then
// shuts down with a 5s budget matching the process's graceful-shutdown
// discipline elsewhere.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
