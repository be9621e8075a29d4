// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TagType distinguishes how a tag was created.
type TagType string

const (
	TagTypeUser   TagType = "user"
	TagTypeLLM    TagType = "llm"
	TagTypeSystem TagType = "system"
)

// Tag is an interned, uniquely named label.
type Tag struct {
	ID   int64
	Name string
	Type TagType
}

// TagStore manages the tags table and the file<->tag join materialized
// as a sorted CSV column on the screening row plus a derived FTS-style
// inverted index table.
type TagStore struct {
	db *sql.DB
}

func newTagStore(db *sql.DB) (*TagStore, error) {
	s := &TagStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL DEFAULT 'llm'
	);
	CREATE TABLE IF NOT EXISTS t_files_fts (
		file_id INTEGER PRIMARY KEY,
		tags_search_ids TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init tags schema: %w", err)
	}
	return s, nil
}

var nonWordBoundary = regexp.MustCompile(`^[^\p{L}\p{N}_]+|[^\p{L}\p{N}_]+$`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeTagName converts whitespace runs to underscores and strips
// leading/trailing non-word characters, per spec.md §3's Tag
// normalization rule.
func NormalizeTagName(raw string) string {
	name := strings.TrimSpace(raw)
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = nonWordBoundary.ReplaceAllString(name, "")
	return name
}

// GetOrCreate interns names: it returns the existing tags plus newly
// created ones. On a unique-constraint collision (a concurrent writer
// won the race) it falls back to a lookup instead of recursing, per
// spec.md §3.
func (s *TagStore) GetOrCreate(names []string, tagType TagType) ([]Tag, error) {
	seen := make(map[string]bool)
	var normalized []string
	for _, raw := range names {
		n := NormalizeTagName(raw)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin get_or_create: %w", err)
	}
	defer tx.Rollback()

	results := make([]Tag, 0, len(normalized))
	for _, name := range normalized {
		tag, err := s.getOrCreateOne(tx, name, tagType)
		if err != nil {
			return nil, err
		}
		results = append(results, tag)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit get_or_create: %w", err)
	}
	return results, nil
}

func (s *TagStore) getOrCreateOne(tx *sql.Tx, name string, tagType TagType) (Tag, error) {
	var tag Tag
	err := tx.QueryRow("SELECT id, name, type FROM tags WHERE name = ?", name).Scan(&tag.ID, &tag.Name, &tag.Type)
	if err == nil {
		return tag, nil
	}
	if err != sql.ErrNoRows {
		return Tag{}, fmt.Errorf("lookup tag %q: %w", name, err)
	}

	res, err := tx.Exec("INSERT INTO tags (name, type) VALUES (?, ?)", name, tagType)
	if err != nil {
		// Unique-constraint collision: another writer interned it first.
		// Fall back to lookup rather than recursing.
		if lookupErr := tx.QueryRow("SELECT id, name, type FROM tags WHERE name = ?", name).Scan(&tag.ID, &tag.Name, &tag.Type); lookupErr == nil {
			return tag, nil
		}
		return Tag{}, fmt.Errorf("insert tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Tag{}, fmt.Errorf("last insert id for tag %q: %w", name, err)
	}
	return Tag{ID: id, Name: name, Type: tagType}, nil
}

// AllNames returns every interned tag name, used as the TagPipeline's
// reuse-candidate list.
func (s *TagStore) AllNames() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tag names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ByNames resolves tag ids for the given names, ignoring names that
// don't exist (used by tag-based search: missing names are ignored,
// not errors, per spec.md §8 S6).
func (s *TagStore) ByNames(names []string) ([]Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = n
	}
	query := fmt.Sprintf("SELECT id, name, type FROM tags WHERE name IN (%s)", strings.Join(placeholders, ","))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup tags by name: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Type); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// LinkTags unions tagIDs with the file's existing tags_display_ids,
// writes the sorted CSV back, and keeps the derived FTS row
// (t_files_fts.tags_search_ids, a whitespace-separated id list) in
// lockstep, all inside one transaction. This resolves the source's
// ambiguous FTS-population Open Question by making it explicit
// application code rather than a database trigger.
func (s *TagStore) LinkTags(fileID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin link_tags: %w", err)
	}
	defer tx.Rollback()

	var existingCSV string
	err = tx.QueryRow("SELECT tags_display_ids FROM file_screenings WHERE id = ?", fileID).Scan(&existingCSV)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read tags_display_ids: %w", err)
	}

	idSet := make(map[int64]bool)
	for _, part := range strings.Split(existingCSV, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, convErr := strconv.ParseInt(part, 10, 64); convErr == nil {
			idSet[id] = true
		}
	}
	for _, id := range tagIDs {
		idSet[id] = true
	}

	merged := make([]int64, 0, len(idSet))
	for id := range idSet {
		merged = append(merged, id)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	csvParts := make([]string, len(merged))
	ftsParts := make([]string, len(merged))
	for i, id := range merged {
		s := strconv.FormatInt(id, 10)
		csvParts[i] = s
		ftsParts[i] = s
	}
	csv := strings.Join(csvParts, ",")
	ftsIDs := strings.Join(ftsParts, " ")

	if _, err := tx.Exec("UPDATE file_screenings SET tags_display_ids = ? WHERE id = ?", csv, fileID); err != nil {
		return fmt.Errorf("update tags_display_ids: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO t_files_fts (file_id, tags_search_ids) VALUES (?, ?) ON CONFLICT(file_id) DO UPDATE SET tags_search_ids = excluded.tags_search_ids",
		fileID, ftsIDs,
	); err != nil {
		return fmt.Errorf("update t_files_fts: %w", err)
	}

	return tx.Commit()
}

// SearchByTagNames resolves file ids whose tags_search_ids match the
// given tag names, combined with AND or OR. Unknown tag names are
// ignored rather than erroring, per spec.md §8 S6.
func (s *TagStore) SearchByTagNames(names []string, operator string) ([]int64, error) {
	tags, err := s.ByNames(names)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query("SELECT file_id, tags_search_ids FROM t_files_fts")
	if err != nil {
		return nil, fmt.Errorf("scan t_files_fts: %w", err)
	}
	defer rows.Close()

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strconv.FormatInt(t.ID, 10)] = true
	}

	var matches []int64
	for rows.Next() {
		var fileID int64
		var idsText string
		if err := rows.Scan(&fileID, &idsText); err != nil {
			return nil, err
		}
		present := make(map[string]bool)
		for _, id := range strings.Fields(idsText) {
			present[id] = true
		}

		switch strings.ToUpper(operator) {
		case "OR":
			for id := range want {
				if present[id] {
					matches = append(matches, fileID)
					break
				}
			}
		default: // AND
			all := true
			for id := range want {
				if !present[id] {
					all = false
					break
				}
			}
			if all {
				matches = append(matches, fileID)
			}
		}
	}
	return matches, rows.Err()
}

// TagCloud returns every tag with the number of files it is linked to,
// for GET /tagging/tag-cloud.
func (s *TagStore) TagCloud(limit, minWeight int) ([]TagWeight, error) {
	rows, err := s.db.Query("SELECT file_id, tags_search_ids FROM t_files_fts")
	if err != nil {
		return nil, fmt.Errorf("scan t_files_fts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var fileID int64
		var idsText string
		if err := rows.Scan(&fileID, &idsText); err != nil {
			return nil, err
		}
		for _, idStr := range strings.Fields(idsText) {
			id, convErr := strconv.ParseInt(idStr, 10, 64)
			if convErr != nil {
				continue
			}
			counts[id]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := s.db.Query("SELECT id, name, type FROM tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer tagRows.Close()

	var result []TagWeight
	for tagRows.Next() {
		var t Tag
		if err := tagRows.Scan(&t.ID, &t.Name, &t.Type); err != nil {
			return nil, err
		}
		weight := counts[t.ID]
		if weight < minWeight {
			continue
		}
		result = append(result, TagWeight{Tag: t, Weight: weight})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Weight > result[j].Weight })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, tagRows.Err()
}

// TagWeight pairs a Tag with how many files it is linked to.
type TagWeight struct {
	Tag    Tag
	Weight int
}
