// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/huozhong-in/knowledge-focus/internal/cache"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

const configCacheTTL = 5 * time.Second

// ConfigHandler serves GET /config/all and the /directories,
// /bundle-extensions, /folders/hierarchy CRUD surface, grounded on the
// teacher's config_handler.go + rules_handler.go shape.
type ConfigHandler struct {
	Dirs  *metastore.DirectoryStore
	cache *cache.TTL[string, map[string]interface{}]
}

// NewConfigHandler constructs a ConfigHandler with a 5s TTL cache for
// /config/all. The reads behind it run without a timeout; the cached
// value is served in place of a fresh one only when a read fails.
func NewConfigHandler(dirs *metastore.DirectoryStore) *ConfigHandler {
	return &ConfigHandler{Dirs: dirs, cache: cache.New[string, map[string]interface{}](configCacheTTL)}
}

// HandleConfigAll answers GET /config/all: monitored folders,
// categories, bundle extensions (macOS only) and a full-disk-access
// boolean. Filter rules, the extension map and the parsable extensions
// are not part of the payload.
func (h *ConfigHandler) HandleConfigAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, ok := h.cache.GetOrComputeFallback("all", func() (map[string]interface{}, error) {
		categories, err := h.Dirs.ListCategories()
		if err != nil {
			return nil, err
		}
		dirs := h.Dirs.ListDirectories()
		var bundleExts []metastore.BundleExtension
		if runtime.GOOS == "darwin" {
			bundleExts, err = h.Dirs.BundleExtensionsForOS("darwin")
			if err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{
			"directories":       dirs,
			"categories":        categories,
			"bundle_extensions": bundleExts,
			"full_disk_access":  runtime.GOOS != "darwin", // non-macOS never needs the grant
		}, nil
	})
	if !ok {
		writeError(w, http.StatusInternalServerError, "config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// HandleDirectories routes GET (list)/POST (create) on /directories.
func (h *ConfigHandler) HandleDirectories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Dirs.ListDirectories())
	case http.MethodPost:
		var req struct {
			Path        string `json:"path"`
			IsBlacklist bool   `json:"is_blacklist"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Path == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}
		id, err := h.Dirs.AddDirectory(req.Path, req.IsBlacklist)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.cache.InvalidateAll()
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleDirectoryByID routes PUT (toggle blacklist)/DELETE on
// /directories/{id}. Toggling to blacklisted purges screening rows
// under that prefix, per spec.md §6.
func (h *ConfigHandler) HandleDirectoryByID(screening *metastore.ScreeningStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "/directories/")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid directory id")
			return
		}

		switch r.Method {
		case http.MethodPut:
			var req struct {
				IsBlacklist bool `json:"is_blacklist"`
			}
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid body")
				return
			}
			if err := h.Dirs.SetBlacklist(id, req.IsBlacklist); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if req.IsBlacklist {
				dir, err := h.Dirs.ByID(id)
				if err == nil {
					if _, err := screening.DeleteByPathPrefix(dir.Path); err != nil {
						writeError(w, http.StatusInternalServerError, err.Error())
						return
					}
				}
			}
			h.cache.InvalidateAll()
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		case http.MethodDelete:
			if err := h.Dirs.DeleteDirectory(id); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			h.cache.InvalidateAll()
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleBundleExtensions routes GET/POST on /bundle-extensions.
func (h *ConfigHandler) HandleBundleExtensions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		osName := r.URL.Query().Get("os")
		if osName == "" {
			osName = runtime.GOOS
		}
		exts, err := h.Dirs.BundleExtensionsForOS(osName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, exts)
	case http.MethodPost:
		var req struct {
			OS        string `json:"os"`
			Extension string `json:"extension"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Extension == "" {
			writeError(w, http.StatusBadRequest, "extension is required")
			return
		}
		if req.OS == "" {
			req.OS = runtime.GOOS
		}
		id, err := h.Dirs.AddBundleExtension(req.OS, req.Extension)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.cache.InvalidateAll()
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleBundleExtensionByID routes DELETE on /bundle-extensions/{id}.
func (h *ConfigHandler) HandleBundleExtensionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := pathID(r, "/bundle-extensions/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bundle extension id")
		return
	}
	if err := h.Dirs.DeleteBundleExtension(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.cache.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleFolderHierarchy answers GET /folders/hierarchy.
func (h *ConfigHandler) HandleFolderHierarchy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Dirs.FolderHierarchy())
}

func pathID(r *http.Request, prefix string) (int64, error) {
	return strconv.ParseInt(pathTail(r, prefix), 10, 64)
}

func pathTail(r *http.Request, prefix string) string {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(raw, "/")
}
