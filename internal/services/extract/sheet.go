// -----------------------------------------------------------------------
// Spreadsheet Extraction - Per-sheet CSV-like serialization via excelize
// -----------------------------------------------------------------------

package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSheet serializes every worksheet into one section. Each sheet is
// prefixed with a "=== SHEET: <name> ===" marker so downstream prompts can
// tell sheets apart, followed by comma-joined rows.
func extractSheet(data []byte) ([]section, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a readable spreadsheet: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}

		builder.WriteString(fmt.Sprintf("=== SHEET: %s ===\n", sheetName))
		for _, row := range rows {
			builder.WriteString(joinCells(row))
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []section{{Location: "workbook", Text: builder.String()}}, nil
}

// joinCells renders one row CSV-style, quoting cells that contain the
// separator or newlines
func joinCells(cells []string) string {
	quoted := make([]string, len(cells))
	for i, cell := range cells {
		if strings.ContainsAny(cell, ",\"\n") {
			cell = "\"" + strings.ReplaceAll(cell, "\"", "\"\"") + "\""
		}
		quoted[i] = cell
	}
	return strings.Join(quoted, ",")
}
