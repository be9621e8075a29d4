// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type excelParser struct{}

// Parse renders each sheet as a "Row N: Header: Value, ..." markdown
// table, one ItemTable DocItem per sheet, so ChunkPipeline's
// classification step sees table content rather than flat text.
func (excelParser) Parse(filePath, _ string) (Parsed, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("open Excel file: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return Parsed{}, fmt.Errorf("no sheets found in Excel file: %s", filePath)
	}

	var flat strings.Builder
	items := make([]DocItem, 0, len(sheetList))

	for sheetIdx, sheetName := range sheetList {
		if sheetIdx > 0 {
			flat.WriteString("\n\n")
		}

		table, err := renderSheetAsMarkdown(f, sheetName)
		if err != nil {
			flat.WriteString(fmt.Sprintf("Sheet: %s\n(Unable to read sheet: %v)\n", sheetName, err))
			continue
		}
		if table == "" {
			continue
		}

		flat.WriteString(fmt.Sprintf("Sheet: %s\n%s", sheetName, table))
		items = append(items, DocItem{Kind: ItemTable, TableMarkdown: fmt.Sprintf("Sheet: %s\n%s", sheetName, table)})
	}

	result := strings.TrimSpace(flat.String())
	if result == "" {
		return Parsed{}, fmt.Errorf("no content extracted from Excel file: %s", filePath)
	}

	return Parsed{FlatText: result, Items: items}, nil
}

func renderSheetAsMarkdown(f *excelize.File, sheetName string) (string, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	headers := rows[0]
	if len(headers) == 0 {
		return "", nil
	}

	var builder strings.Builder
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]

		var rowParts []string
		for colIdx, header := range headers {
			if colIdx >= len(row) || row[colIdx] == "" {
				continue
			}
			value := strings.TrimSpace(row[colIdx])
			if value == "" {
				continue
			}
			headerName := strings.TrimSpace(header)
			if headerName == "" {
				headerName = fmt.Sprintf("Column %d", colIdx+1)
			}
			rowParts = append(rowParts, fmt.Sprintf("%s: %s", headerName, value))
		}

		if len(rowParts) > 0 {
			builder.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(rowParts, ", ")))
		}
	}

	return builder.String(), nil
}
