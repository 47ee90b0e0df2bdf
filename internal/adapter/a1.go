package adapter

import (
	"fmt"
	"strconv"
	"strings"
)

// SheetRange is a parsed A1 range such as "Coupons!A2:F1000".
type SheetRange struct {
	Sheet    string
	StartCol int // 0-based
	StartRow int // 1-based
	EndCol   int
	EndRow   int
}

// ParseSheetRange parses A1 notation with a mandatory sheet name.
func ParseSheetRange(s string) (SheetRange, error) {
	bang := strings.LastIndex(s, "!")
	if bang <= 0 {
		return SheetRange{}, fmt.Errorf("range %q has no sheet name", s)
	}
	sheet := strings.Trim(s[:bang], "'")
	cells := strings.Split(s[bang+1:], ":")
	if len(cells) != 2 {
		return SheetRange{}, fmt.Errorf("range %q must have a start and an end cell", s)
	}

	startCol, startRow, err := parseCell(cells[0])
	if err != nil {
		return SheetRange{}, fmt.Errorf("range %q: %w", s, err)
	}
	endCol, endRow, err := parseCell(cells[1])
	if err != nil {
		return SheetRange{}, fmt.Errorf("range %q: %w", s, err)
	}
	if startRow == 0 {
		startRow = 1
	}
	return SheetRange{Sheet: sheet, StartCol: startCol, StartRow: startRow, EndCol: endCol, EndRow: endRow}, nil
}

// Cell returns the A1 address of a single cell on the same sheet.
func (r SheetRange) Cell(col, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(r.Sheet), ColumnLetter(col), row)
}

func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// parseCell splits "F12" into column 5 and row 12. A bare column ("F") yields row 0.
// Column letters must be uppercase so a stray letter in the row part is not read as a column.
func parseCell(cell string) (int, int, error) {
	cell = strings.TrimSpace(cell)
	i := 0
	col := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("cell %q has no column", cell)
	}
	row := 0
	if i < len(cell) {
		n, err := strconv.Atoi(cell[i:])
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("cell %q has an invalid row", cell)
		}
		row = n
	}
	return col - 1, row, nil
}

// ColumnLetter converts a 0-based column index to its A1 letters.
func ColumnLetter(col int) string {
	col++
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}
