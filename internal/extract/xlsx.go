package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// cellSeparator joins non-empty cell values within one row.
const cellSeparator = " | "

// extractXLSX renders every sheet as a "Sheet: <name>" header followed by one
// line per row, non-empty cells joined with a separator, blank line between
// sheets.
func extractXLSX(raw []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	var result strings.Builder
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		if i > 0 {
			result.WriteString("\n")
		}
		result.WriteString("Sheet: " + sheet + "\n")
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if trimmed := strings.TrimSpace(cell); trimmed != "" {
					cells = append(cells, trimmed)
				}
			}
			if len(cells) == 0 {
				continue
			}
			result.WriteString(strings.Join(cells, cellSeparator) + "\n")
		}
	}
	return result.String(), nil
}
