// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mnako/letters"
)

type emailParser struct{}

// Parse extracts an EML's Subject/Sender/Date header block plus body
// text (preferring the plain-text part) as a single text DocItem.
func (emailParser) Parse(filePath, _ string) (Parsed, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("open EML file: %w", err)
	}
	defer file.Close()

	email, err := letters.ParseEmail(file)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse EML file: %w", err)
	}

	var builder strings.Builder
	if email.Headers.Subject != "" {
		builder.WriteString(fmt.Sprintf("Subject: %s\n", email.Headers.Subject))
	}
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		sender := from.Address
		if from.Name != "" {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		builder.WriteString(fmt.Sprintf("Sender: %s\n", sender))
	}
	if !email.Headers.Date.IsZero() {
		builder.WriteString(fmt.Sprintf("Date: %s\n", email.Headers.Date.Format(time.RFC3339)))
	}
	builder.WriteString("\n")

	bodyText := email.Text
	if bodyText == "" {
		bodyText = email.HTML
	}
	if bodyText != "" {
		builder.WriteString(bodyText)
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return Parsed{}, fmt.Errorf("no content extracted from EML: %s", filePath)
	}

	return Parsed{
		FlatText: text,
		Items:    []DocItem{{Kind: ItemText, Text: text}},
	}, nil
}
