// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package parsing converts a file on disk into a typed sequence of
// DocItems (text/image/table) plus a flat-text convenience field,
// dispatched by extension the way the teacher's internal/parser did,
// extended with the item typing ChunkPipeline's classification step
// needs.
package parsing

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ItemKind is what a DocItem represents.
type ItemKind string

const (
	ItemText  ItemKind = "text"
	ItemImage ItemKind = "image"
	ItemTable ItemKind = "table"
)

// DocItem is one extracted unit from a parsed document, in document order.
type DocItem struct {
	Kind          ItemKind
	Text          string // for ItemText, and the caption for ItemImage once described
	ImagePath     string // for ItemImage: path under <db_dir>/docling_cache/<stem>/page-N.png
	TableMarkdown string // for ItemTable: the sheet rendered as "Row N: Header: Value, ..." lines
}

// Parsed is a document's intermediate representation: a flat
// convenience text (for the simple extraction paths like tagging) plus
// the typed item sequence ChunkPipeline classifies.
type Parsed struct {
	FlatText string
	Items    []DocItem
}

// Parser converts a file at an absolute path into its Parsed form.
// cacheDir is where a Parser that extracts images (pdf) writes them;
// it is ignored by Parsers that never produce ItemImage DocItems.
type Parser interface {
	Parse(filePath, cacheDir string) (Parsed, error)
}

// DispatchParse routes a file to its format-specific Parser by
// extension. cacheDir is the per-document image cache directory
// (`<db_dir>/docling_cache/<stem>/`), created by the caller.
func DispatchParse(filePath, cacheDir string) (Parsed, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var p Parser
	switch ext {
	case ".pdf":
		p = pdfParser{}
	case ".docx":
		p = docxParser{}
	case ".txt", ".md":
		p = textParser{}
	case ".xlsx", ".xls":
		p = excelParser{}
	case ".html", ".htm":
		p = htmlParser{}
	case ".eml":
		p = emailParser{}
	default:
		return Parsed{}, fmt.Errorf("unsupported file type: %s", ext)
	}

	return p.Parse(filePath, cacheDir)
}

// IsSupportedFile reports whether a file extension has a registered Parser.
func IsSupportedFile(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".docx", ".txt", ".md", ".xlsx", ".xls", ".html", ".htm", ".eml":
		return true
	default:
		return false
	}
}

// IsTemporaryFile reports whether a path looks like an editor or OS
// scratch file (Office lock files, macOS resource forks, .tmp files)
// that should never be screened.
func IsTemporaryFile(filePath string) bool {
	base := filepath.Base(filePath)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") || strings.HasSuffix(base, ".tmp")
}
