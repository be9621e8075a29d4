// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Monitored-folder/category/extension configuration backing the
// /directories, /bundle-extensions and /folders/hierarchy endpoints,
// grounded on the teacher's internal/rules/store.go: one Store type
// with its own initSchema and a mu sync.RWMutex-guarded in-memory
// cache refreshed on every write, generalized from a flat list of
// semantic search queries to a folder whitelist/blacklist tree plus a
// category/extension lookup table.
package metastore

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Directory is one monitored folder. Blacklisted directories are
// excluded from ingestion even if nested under a whitelisted parent.
type Directory struct {
	ID          int64
	Path        string
	IsBlacklist bool
}

// Category groups file extensions for display/filtering (e.g. "Documents", "Images").
type Category struct {
	ID   int64
	Name string
}

// BundleExtension is a per-OS "treat this extension as an opaque
// bundle, not a folder to descend into" entry (macOS .app/.bundle and
// similar package directories).
type BundleExtension struct {
	ID        int64
	OS        string // "darwin" | "windows" | "linux"
	Extension string
}

// DirectoryStore manages monitored folders, categories, the
// extension->category map, and bundle extensions. Active directories
// and the extension map are cached in memory and refreshed on every
// write, mirroring the teacher's refreshCache idiom.
type DirectoryStore struct {
	db *sql.DB

	mu            sync.RWMutex
	directories   []Directory
	extensionToID map[string]int64 // extension -> category_id
}

func newDirectoryStore(db *sql.DB) (*DirectoryStore, error) {
	s := &DirectoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init directories schema: %w", err)
	}
	if err := s.refreshCache(); err != nil {
		return nil, fmt.Errorf("load directories cache: %w", err)
	}
	return s, nil
}

func (s *DirectoryStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS directories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		is_blacklist INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS extension_map (
		extension TEXT PRIMARY KEY,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS bundle_extensions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		os TEXT NOT NULL,
		extension TEXT NOT NULL,
		UNIQUE(os, extension)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *DirectoryStore) refreshCache() error {
	dirRows, err := s.db.Query("SELECT id, path, is_blacklist FROM directories")
	if err != nil {
		return fmt.Errorf("load directories: %w", err)
	}
	defer dirRows.Close()

	var dirs []Directory
	for dirRows.Next() {
		var d Directory
		var blacklist int
		if err := dirRows.Scan(&d.ID, &d.Path, &blacklist); err != nil {
			return err
		}
		d.IsBlacklist = blacklist != 0
		dirs = append(dirs, d)
	}
	if err := dirRows.Err(); err != nil {
		return err
	}

	extRows, err := s.db.Query("SELECT extension, category_id FROM extension_map")
	if err != nil {
		return fmt.Errorf("load extension map: %w", err)
	}
	defer extRows.Close()

	extMap := make(map[string]int64)
	for extRows.Next() {
		var ext string
		var categoryID int64
		if err := extRows.Scan(&ext, &categoryID); err != nil {
			return err
		}
		extMap[ext] = categoryID
	}
	if err := extRows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.directories = dirs
	s.extensionToID = extMap
	s.mu.Unlock()
	return nil
}

// AddDirectory inserts a monitored folder.
func (s *DirectoryStore) AddDirectory(path string, isBlacklist bool) (int64, error) {
	res, err := s.db.Exec("INSERT INTO directories (path, is_blacklist) VALUES (?, ?)", path, isBlacklist)
	if err != nil {
		return 0, fmt.Errorf("add directory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, s.refreshCache()
}

// SetBlacklist toggles a directory's blacklist flag. If the directory
// becomes blacklisted, the caller is responsible for purging screening
// rows under its prefix via ScreeningStore.DeleteByPathPrefix.
func (s *DirectoryStore) SetBlacklist(id int64, isBlacklist bool) error {
	if _, err := s.db.Exec("UPDATE directories SET is_blacklist = ? WHERE id = ?", isBlacklist, id); err != nil {
		return fmt.Errorf("set blacklist: %w", err)
	}
	return s.refreshCache()
}

// DeleteDirectory removes a monitored folder.
func (s *DirectoryStore) DeleteDirectory(id int64) error {
	if _, err := s.db.Exec("DELETE FROM directories WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}
	return s.refreshCache()
}

// ByID fetches one directory.
func (s *DirectoryStore) ByID(id int64) (*Directory, error) {
	d := &Directory{}
	var blacklist int
	err := s.db.QueryRow("SELECT id, path, is_blacklist FROM directories WHERE id = ?", id).Scan(&d.ID, &d.Path, &blacklist)
	if err != nil {
		return nil, fmt.Errorf("directory by id %d: %w", id, err)
	}
	d.IsBlacklist = blacklist != 0
	return d, nil
}

// ListDirectories returns every monitored folder, from cache.
func (s *DirectoryStore) ListDirectories() []Directory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dirs := make([]Directory, len(s.directories))
	copy(dirs, s.directories)
	return dirs
}

// Hierarchy groups blacklisted directories under whichever whitelisted
// directory is their closest ancestor by path prefix, for GET
// /folders/hierarchy.
type Hierarchy struct {
	Parent   Directory
	Children []Directory
}

// FolderHierarchy builds the whitelist-parents-with-blacklist-children
// view. A blacklisted directory with no whitelisted ancestor is
// dropped — it can't be a child of anything shown.
func (s *DirectoryStore) FolderHierarchy() []Hierarchy {
	dirs := s.ListDirectories()

	var parents []Directory
	var children []Directory
	for _, d := range dirs {
		if d.IsBlacklist {
			children = append(children, d)
		} else {
			parents = append(parents, d)
		}
	}

	sort.Slice(parents, func(i, j int) bool { return len(parents[i].Path) > len(parents[j].Path) })

	result := make([]Hierarchy, 0, len(parents))
	byParentID := make(map[int64]int)
	for _, p := range parents {
		byParentID[p.ID] = len(result)
		result = append(result, Hierarchy{Parent: p})
	}

	for _, c := range children {
		for _, p := range parents {
			if strings.HasPrefix(c.Path, p.Path) {
				idx := byParentID[p.ID]
				result[idx].Children = append(result[idx].Children, c)
				break
			}
		}
	}
	return result
}

// AddCategory inserts a category, idempotent by name.
func (s *DirectoryStore) AddCategory(name string) (int64, error) {
	_, err := s.db.Exec("INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name)
	if err != nil {
		return 0, fmt.Errorf("add category: %w", err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM categories WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve category id: %w", err)
	}
	return id, nil
}

// ListCategories returns every category.
func (s *DirectoryStore) ListCategories() ([]Category, error) {
	rows, err := s.db.Query("SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SetExtensionCategory maps an extension to a category, replacing any
// existing mapping.
func (s *DirectoryStore) SetExtensionCategory(extension string, categoryID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO extension_map (extension, category_id) VALUES (?, ?)
		ON CONFLICT(extension) DO UPDATE SET category_id = excluded.category_id
	`, extension, categoryID)
	if err != nil {
		return fmt.Errorf("set extension category: %w", err)
	}
	return s.refreshCache()
}

// CategoryForExtension looks up a cached extension->category mapping.
func (s *DirectoryStore) CategoryForExtension(extension string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.extensionToID[extension]
	return id, ok
}

// AddBundleExtension registers osName's extension as an opaque bundle.
func (s *DirectoryStore) AddBundleExtension(osName, extension string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO bundle_extensions (os, extension) VALUES (?, ?) ON CONFLICT(os, extension) DO NOTHING",
		osName, extension,
	)
	if err != nil {
		return 0, fmt.Errorf("add bundle extension: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteBundleExtension removes a bundle extension entry.
func (s *DirectoryStore) DeleteBundleExtension(id int64) error {
	_, err := s.db.Exec("DELETE FROM bundle_extensions WHERE id = ?", id)
	return err
}

// BundleExtensionsForOS lists the bundle extensions registered for osName.
func (s *DirectoryStore) BundleExtensionsForOS(osName string) ([]BundleExtension, error) {
	rows, err := s.db.Query("SELECT id, os, extension FROM bundle_extensions WHERE os = ?", osName)
	if err != nil {
		return nil, fmt.Errorf("bundle extensions for %s: %w", osName, err)
	}
	defer rows.Close()

	var exts []BundleExtension
	for rows.Next() {
		var b BundleExtension
		if err := rows.Scan(&b.ID, &b.OS, &b.Extension); err != nil {
			return nil, err
		}
		exts = append(exts, b)
	}
	return exts, rows.Err()
}
