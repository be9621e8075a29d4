// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
)

type htmlParser struct{}

// Parse strips script/style/noscript tags and returns the remaining
// text as a single text DocItem.
func (htmlParser) Parse(filePath, _ string) (Parsed, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("open HTML file: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Text()
	if text == "" {
		return Parsed{}, fmt.Errorf("no text extracted from HTML: %s", filePath)
	}

	return Parsed{
		FlatText: text,
		Items:    []DocItem{{Kind: ItemText, Text: text}},
	}, nil
}
