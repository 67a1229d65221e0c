// Package report handles the run's input and output surfaces: comment
// spreadsheets in, serialized trees and flattened result sheets out.
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadComments reads the given column from the first sheet of an .xlsx
// workbook. The first row is treated as the header; blank cells are
// skipped.
func LoadComments(path, column string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	col := -1
	for i, header := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(header), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in %s", column, path)
	}

	var comments []string
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if text := strings.TrimSpace(row[col]); text != "" {
			comments = append(comments, text)
		}
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("column %q in %s has no comments", column, path)
	}
	return comments, nil
}
