// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"os"
)

type textParser struct{}

// Parse reads plain text/markdown files as a single text DocItem.
func (textParser) Parse(filePath, _ string) (Parsed, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("read text file: %w", err)
	}

	text := string(content)
	if text == "" {
		return Parsed{}, fmt.Errorf("no content in text file: %s", filePath)
	}

	return Parsed{
		FlatText: text,
		Items:    []DocItem{{Kind: ItemText, Text: text}},
	}, nil
}
