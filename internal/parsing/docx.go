// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

type docxParser struct{}

// Parse reads a .docx file's body text as a single text DocItem.
func (docxParser) Parse(filePath, _ string) (Parsed, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("open DOCX: %w", err)
	}
	defer r.Close()

	text := strings.TrimSpace(r.Editable().GetContent())
	if text == "" {
		return Parsed{}, fmt.Errorf("no text extracted from DOCX: %s", filePath)
	}

	return Parsed{
		FlatText: text,
		Items:    []DocItem{{Kind: ItemText, Text: text}},
	}, nil
}
